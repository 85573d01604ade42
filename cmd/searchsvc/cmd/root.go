// Package cmd provides the CLI commands for searchsvc.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/shopsearch/internal/config"
)

var (
	configDir string
	debugMode bool
)

// NewRootCmd creates the root command for the searchsvc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchsvc",
		Short: "Semantic product search service",
		Long: `searchsvc serves semantic and fuzzy product search over a storefront
catalog, with adaptive result relaxation, result caching, and offline
baseline and retention jobs.

Run 'searchsvc serve' to start the service, or use the baseline,
retention, and cache subcommands for operator tasks.`,
		PersistentPreRunE: setupLogging,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory to look for .shopsearch.yaml in")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug-level logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBaselineCmd())
	cmd.AddCommand(newRetentionCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig loads configuration for configDir, applying the --debug
// flag's log level over whatever the config file specifies.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}
