// Package cmd defines and implements the CLI commands for the dpd-enricher executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/config"
	"github.com/dosevalidator/dpd-enricher/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dpd-enricher",
		Short: "Enriches the Health Canada DPD catalog with product monograph links.",
		Long: `dpd-enricher maintains a catalog of Health Canada drug products.
The import command loads the government drug product extracts; the enrich
command visits each product page and records the monograph PDF URL and date.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newEnrichCmd())
	cmd.AddCommand(newImportCmd())

	return cmd
}

// loadRuntime builds the config and logger shared by all subcommands.
func loadRuntime() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
