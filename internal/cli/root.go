// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the civitaifetch command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comfydodi/civitaifetch/internal/logging"
	"github.com/comfydodi/civitaifetch/pkg/civitai"
)

// TokenEnvVar is the environment variable consulted for a default API token
// when neither --api-key nor a config-file token is given.
const TokenEnvVar = "CIVITAI_API_TOKEN"

// RootOpts holds global CLI options.
type RootOpts struct {
	APIKey   string
	JSONOut  bool
	Quiet    bool
	Config   string
	LogFile  string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "civitaifetch",
		Short:         "Resolve, download and cache CivitAI model artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&ro.APIKey, "api-key", "k", "", "CivitAI API token (also reads "+TokenEnvVar+" env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events instead of human output")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (no progress bar, minimal logs)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write logs to a rotating file (in addition to stderr)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	fetchCmd := newFetchCmd(ctx, ro)
	root.AddCommand(fetchCmd)
	root.AddCommand(newLedgerCmd(ro))
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd(version))

	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newFetchCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	cfg := civitai.DefaultSettings()
	var (
		existingFile string
		pathLabel    string
		ledgerPath   string
	)

	cmd := &cobra.Command{
		Use:   "fetch IDENTIFIER",
		Short: "Fetch a model artifact by its \"model@version\" identifier",
		Long: `Fetch resolves the identifier against the CivitAI registry, downloads the
artifact into the selected model directory, and records it in the download
ledger. Artifacts already present (per ledger and disk) are returned without
any network activity.

Examples:
  civitaifetch fetch 12345@67890
  civitaifetch fetch 12345 --paths /data/loras,/mnt/loras --path loras
  civitaifetch fetch 12345@67890 --fallback aria2c --connections 32`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, &cfg, &ledgerPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Setup(ro.LogLevel, ro.LogFile)

			identifier := ""
			if len(args) > 0 {
				identifier = args[0]
			}
			finalCfg := finalizeSettings(ro, cfg)

			store := civitai.NewLedgerStore(ledgerPath)
			renderer := newProgressRenderer(ro, log)
			defer renderer.Close()
			loader := civitai.NewLoader(finalCfg, store, renderer.Handler())

			name, err := loader.Load(ctx, civitai.Request{
				Identifier:   identifier,
				ExistingFile: existingFile,
				APIKey:       strings.TrimSpace(ro.APIKey),
				PathLabel:    pathLabel,
			})
			if err != nil {
				return err
			}

			// The resolved local file name is the command's single output.
			fmt.Println(name)
			return nil
		},
	}

	cmd.Flags().StringVar(&existingFile, "use-existing", "none", "Known local file to use instead of downloading (\"none\" disables)")
	cmd.Flags().StringVar(&pathLabel, "path", "", "Short label of the target model directory (default: first configured)")
	cmd.Flags().StringSliceVarP(&cfg.SearchPaths, "paths", "p", []string{"Models"}, "Configured model directories, first is the default download target")
	cmd.Flags().StringVar(&cfg.Fallback, "fallback", civitai.FallbackAuto, "Download fallback strategy: auto|aria2c|wget|curl|direct-only")
	cmd.Flags().IntVar(&cfg.TimeoutSeconds, "timeout", 20, "Per-request HTTP timeout in seconds (5-300)")
	cmd.Flags().IntVarP(&cfg.Connections, "connections", "c", 16, "Parallel connections for multi-connection tools (1-64)")
	cmd.Flags().StringVar(&cfg.ChunkSize, "chunk-size", "1MiB", "Copy buffer size for direct streaming")
	cmd.Flags().BoolVar(&cfg.PreferTools, "prefer-tools", false, "Try external tools before the in-process HTTP client")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", civitai.DefaultEndpoint, "Registry API base URL")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "download_history.json", "Path of the download ledger file")

	return cmd
}

// finalizeSettings applies the token resolution order: explicit flag, then
// config-file token (already in cfg), then environment.
func finalizeSettings(ro *RootOpts, cfg civitai.Settings) civitai.Settings {
	if tok := strings.TrimSpace(ro.APIKey); tok != "" {
		cfg.Token = tok
	}
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(os.Getenv(TokenEnvVar))
	}
	return cfg
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
