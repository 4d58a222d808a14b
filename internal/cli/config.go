// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

// DefaultConfig returns the default configuration file contents.
func DefaultConfig() map[string]any {
	return map[string]any{
		"paths":        []string{"Models"},
		"fallback":     civitai.FallbackAuto,
		"timeout":      20,
		"connections":  16,
		"chunk-size":   "1MiB",
		"prefer-tools": false,
		"ledger":       "download_history.json",
		"endpoint":     civitai.DefaultEndpoint,
		"token":        "",
	}
}

func configBasePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "civitaifetch")
}

// applySettingsDefaults fills settings from the config file for every flag
// the user did not set explicitly. CLI flags always win.
func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, dst *civitai.Settings, ledgerPath *string) error {
	path := ro.Config
	if path == "" {
		jsonPath := configBasePath() + ".json"
		yamlPath := configBasePath() + ".yaml"
		ymlPath := configBasePath() + ".yml"

		if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(ymlPath); err == nil {
			path = ymlPath
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default: // .json or unknown
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}
	setBool := func(flagName string, set func(bool)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v) == "true")
		}
	}

	if !cmd.Flags().Changed("paths") {
		if v, ok := cfg["paths"]; ok {
			if list, ok := v.([]any); ok {
				var paths []string
				for _, p := range list {
					if s := strings.TrimSpace(fmt.Sprint(p)); s != "" {
						paths = append(paths, s)
					}
				}
				if len(paths) > 0 {
					dst.SearchPaths = paths
				}
			}
		}
	}
	setStr("fallback", func(v string) { dst.Fallback = v })
	setInt("timeout", func(v int) { dst.TimeoutSeconds = v })
	setInt("connections", func(v int) { dst.Connections = v })
	setStr("chunk-size", func(v string) { dst.ChunkSize = v })
	setBool("prefer-tools", func(v bool) { dst.PreferTools = v })
	setStr("endpoint", func(v string) { dst.Endpoint = v })
	setStr("ledger", func(v string) { *ledgerPath = v })

	if !cmd.Flags().Changed("api-key") && os.Getenv(TokenEnvVar) == "" {
		if v, ok := cfg["token"]; ok && v != nil {
			dst.Token = fmt.Sprint(v)
		}
	}

	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/civitaifetch.json (or .yaml)

The configuration file sets default values for all command flags.
CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := ".json"
			if useYAML {
				ext = ".yaml"
			}
			configPath := configBasePath() + ext

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}

			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			var err error
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("Created config file: %s\n", configPath)
			fmt.Println()
			fmt.Println("Edit this file to set your defaults. For example:")
			fmt.Println("  - Set your CivitAI API token")
			fmt.Println("  - Configure your model directories")
			fmt.Println("  - Pick a download fallback strategy")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := configBasePath() + ".json"

			if _, err := os.Stat(configPath); err != nil {
				fmt.Println("No config file found.")
				fmt.Printf("Run 'civitaifetch config init' to create one at:\n  %s\n", configPath)
				return nil
			}

			data, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("Config file: %s\n\n", configPath)
			fmt.Println(string(data))

			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(configBasePath() + ".json")
		},
	}
}
