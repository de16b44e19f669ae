package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
	"github.com/dosevalidator/dpd-enricher/internal/clock/system"
	"github.com/dosevalidator/dpd-enricher/internal/monograph"
	"github.com/dosevalidator/dpd-enricher/internal/ops"
	"github.com/dosevalidator/dpd-enricher/internal/pipeline"
	"github.com/dosevalidator/dpd-enricher/internal/store/postgres"
	"github.com/dosevalidator/dpd-enricher/internal/writer"
)

// newEnrichCmd creates and configures the 'enrich' subcommand. It drains all
// pending catalog rows, fetching each product page and recording the
// monograph reference back into the store.
func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Enrich pending catalog rows with monograph URLs",
		Long: `Pulls pending rows from the catalog in batches, fetches each
product page under a bounded worker pool, and writes the extracted
monograph PDF URL and date back to the store with retry and backoff.`,
		RunE: runEnrichCommand,
	}
}

func runEnrichCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()

	storeCfg := postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}

	// The batch source and the writer hold separate store handles: the
	// writer replaces its own on transient failure without pulling the
	// connection out from under the batch loop.
	batchStore, err := postgres.NewCatalogStore(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("connect catalog store: %w", err)
	}
	defer batchStore.Close()

	storeFactory := func(ctx context.Context) (catalog.ResultWriter, error) {
		return postgres.NewCatalogStore(ctx, storeCfg)
	}
	writeStore, err := storeFactory(ctx)
	if err != nil {
		return fmt.Errorf("connect writer store: %w", err)
	}

	clk := system.New()
	sleeper := system.NewSleeper()

	resilient := writer.NewResilient(
		writeStore,
		storeFactory,
		writer.Config{
			MaxRetries: cfg.Writer.MaxRetries,
			Backoff:    writer.NewSchedule(cfg.BackoffBase(), cfg.BackoffJitter()),
		},
		sleeper,
		logger.Named("writer"),
	)
	defer resilient.Close()

	fetcherCfg := monograph.Config{
		BaseURL:   cfg.Enricher.BaseURL,
		UserAgent: cfg.Enricher.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}
	pool := pipeline.NewPool(
		cfg.Enricher.Workers,
		func() catalog.Fetcher {
			return monograph.NewPageFetcher(fetcherCfg, logger.Named("fetcher"))
		},
		clk,
		logger.Named("pool"),
	)

	orch := pipeline.NewOrchestrator(
		batchStore,
		pool,
		resilient,
		sleeper,
		pipeline.Config{
			BatchSize:        cfg.Enricher.BatchSize,
			LogEvery:         cfg.Enricher.LogEvery,
			BatchPause:       time.Duration(cfg.Enricher.BatchPauseMs) * time.Millisecond,
			BatchPauseJitter: time.Duration(cfg.Enricher.BatchPauseJitterMs) * time.Millisecond,
		},
		logger.Named("orchestrator"),
	)

	if cfg.Server.Port > 0 {
		opsServer := ops.NewServer(cfg.Server.Port, logger.Named("ops"))
		opsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("ops server shutdown failed", zap.Error(err))
			}
		}()
	}

	totals, err := orch.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run enrichment: %w", err)
	}

	logger.Info("enrichment finished",
		zap.Int("checked", totals.Checked),
		zap.Int("found", totals.Found),
		zap.Int("no_pdf", totals.NoPDF),
		zap.Int("failed_fetch", totals.FailedFetch),
		zap.Int("failed_write", totals.FailedWrite),
	)
	return nil
}
