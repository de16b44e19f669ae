package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/clock/system"
	"github.com/dosevalidator/dpd-enricher/internal/id/uuid"
	"github.com/dosevalidator/dpd-enricher/internal/importer"
	"github.com/dosevalidator/dpd-enricher/internal/store/postgres"
)

// newImportCmd creates and configures the 'import' subcommand. It performs
// the one-time bulk load of the Health Canada drug product extracts.
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Bulk-load the Health Canada DPD drug product extracts",
		Long: `Downloads the government drug product extract ZIPs, parses the
contained CSV files, and upserts the rows into the catalog with
pm_status seeded to pending so the enrich command picks them up.`,
		RunE: runImportCommand,
	}
}

func runImportCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()

	store, err := postgres.NewCatalogStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect catalog store: %w", err)
	}
	defer store.Close()

	imp := importer.New(
		store,
		uuid.New(),
		nil,
		system.NewSleeper(),
		importer.Config{
			WorkDir:   cfg.Import.WorkDir,
			BatchSize: cfg.Import.BatchSize,
			Pause:     time.Duration(cfg.Import.PauseMs) * time.Millisecond,
		},
		logger.Named("importer"),
	)

	total, err := imp.Run(ctx)
	if err != nil {
		return fmt.Errorf("run import: %w", err)
	}

	logger.Info("import completed", zap.Int("rows", total))
	return nil
}
