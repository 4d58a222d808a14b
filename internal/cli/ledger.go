// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

func newLedgerCmd(ro *RootOpts) *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the download ledger",
	}
	cmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "download_history.json", "Path of the download ledger file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the recorded download history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger := civitai.NewLedgerStore(ledgerPath).Load()

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ledger)
			}

			if len(ledger) == 0 {
				fmt.Println("Ledger is empty.")
				return nil
			}

			models := make([]string, 0, len(ledger))
			for model := range ledger {
				models = append(models, model)
			}
			sort.Strings(models)

			for _, model := range models {
				fmt.Printf("model %s:\n", model)
				for _, rec := range ledger[model] {
					version := "unresolved"
					if rec.ID != nil {
						version = fmt.Sprint(*rec.ID)
					}
					for _, f := range rec.Files {
						fmt.Printf("  %-12s %s\n", version, f.Name)
					}
				}
			}
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the ledger file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(ledgerPath)
		},
	}

	cmd.AddCommand(show)
	cmd.AddCommand(path)
	return cmd
}
