// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comfydodi/civitaifetch/internal/logging"
	"github.com/comfydodi/civitaifetch/internal/server"
	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	cfg := server.DefaultConfig()
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for remote-controlled fetches",
		Long: `Start an HTTP server that provides:
  - REST API for resolving and downloading model artifacts
  - WebSocket stream of download progress events
  - Read access to the download ledger

Model directories and the ledger path are configured server-side only.

Example:
  civitaifetch serve
  civitaifetch serve --port 3000 --paths /data/loras,/mnt/loras`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Setup(ro.LogLevel, ro.LogFile)

			token := strings.TrimSpace(ro.APIKey)
			if token == "" {
				token = strings.TrimSpace(os.Getenv(TokenEnvVar))
			}
			cfg.Token = token
			cfg.AllowedOrigins = origins

			return server.New(cfg, log).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	cmd.Flags().StringSliceVarP(&cfg.SearchPaths, "paths", "p", cfg.SearchPaths, "Configured model directories")
	cmd.Flags().StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "Path of the download ledger file")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "Registry API base URL override")
	cmd.Flags().StringVar(&cfg.Fallback, "fallback", civitai.FallbackAuto, "Download fallback strategy")
	cmd.Flags().IntVar(&cfg.TimeoutSeconds, "timeout", cfg.TimeoutSeconds, "Per-request HTTP timeout in seconds")
	cmd.Flags().IntVarP(&cfg.Connections, "connections", "c", cfg.Connections, "Parallel connections for multi-connection tools")
	cmd.Flags().BoolVar(&cfg.PreferTools, "prefer-tools", false, "Try external tools before the in-process HTTP client")
	cmd.Flags().StringSliceVar(&origins, "allowed-origins", nil, "CORS origins allowed to call the API")

	return cmd
}
