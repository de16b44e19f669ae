package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
	"github.com/dosevalidator/dpd-enricher/internal/metrics"
)

// ResultSink persists one classified result, reporting success.
type ResultSink interface {
	Write(ctx context.Context, res catalog.FetchResult) bool
}

// state is the orchestrator's batch-loop state.
type state int

const (
	stateDraining state = iota
	stateDone
)

// Config controls Orchestrator behavior.
type Config struct {
	BatchSize        int
	LogEvery         int
	BatchPause       time.Duration
	BatchPauseJitter time.Duration
}

// Orchestrator drives the enrichment loop: pull a pending batch, dispatch it
// to the pool, persist each result as it completes, and stop once the
// catalog reports no pending work.
type Orchestrator struct {
	source  catalog.BatchSource
	pool    *Pool
	sink    ResultSink
	sleeper catalog.Sleeper
	cfg     Config
	logger  *zap.Logger

	// jitterFn overrides the inter-batch pause jitter in tests.
	jitterFn func(limit time.Duration) time.Duration
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	source catalog.BatchSource,
	pool *Pool,
	sink ResultSink,
	sleeper catalog.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:  source,
		pool:    pool,
		sink:    sink,
		sleeper: sleeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run drains the catalog and returns the final counters. The only normal
// stop condition is an empty batch; a context cancellation or a failing
// batch query ends the run early with the counters accumulated so far.
func (o *Orchestrator) Run(ctx context.Context) (catalog.Counters, error) {
	var totals catalog.Counters

	for st := stateDraining; st == stateDraining; {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		batch, err := o.source.PendingBatch(ctx, o.cfg.BatchSize)
		if err != nil {
			return totals, fmt.Errorf("pending batch: %w", err)
		}
		if len(batch) == 0 {
			st = stateDone
			continue
		}

		metrics.ObserveBatch()
		o.logger.Info("processing pending batch", zap.Int("size", len(batch)))
		o.pause(ctx)

		for res := range o.pool.Process(ctx, batch) {
			totals.Add(res)
			metrics.ObserveItem(string(res.Status))

			if !o.sink.Write(ctx, res) {
				totals.FailedWrite++
				metrics.ObserveWriteFailure()
			}

			if totals.Checked%o.cfg.LogEvery == 0 {
				o.logProgress(totals)
			}
		}
	}

	o.logger.Info("no more pending rows",
		zap.Int("checked", totals.Checked),
		zap.Int("found", totals.Found),
		zap.Int("no_pdf", totals.NoPDF),
		zap.Int("failed_fetch", totals.FailedFetch),
		zap.Int("failed_write", totals.FailedWrite),
	)
	return totals, nil
}

// pause applies a short randomized delay between batches to bound the
// request rate against the product page source.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.cfg.BatchPause <= 0 && o.cfg.BatchPauseJitter <= 0 {
		return
	}
	jitter := o.jitterFn
	if jitter == nil {
		jitter = func(limit time.Duration) time.Duration {
			if limit <= 0 {
				return 0
			}
			return rand.N(limit)
		}
	}
	o.sleeper.Sleep(ctx, o.cfg.BatchPause+jitter(o.cfg.BatchPauseJitter))
}

func (o *Orchestrator) logProgress(totals catalog.Counters) {
	o.logger.Info("progress",
		zap.Int("checked", totals.Checked),
		zap.Int("found", totals.Found),
		zap.Int("no_pdf", totals.NoPDF),
		zap.Int("failed_fetch", totals.FailedFetch),
		zap.Int("failed_write", totals.FailedWrite),
	)
}
