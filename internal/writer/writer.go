package writer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
	"github.com/dosevalidator/dpd-enricher/internal/metrics"
)

// Factory recreates the store client after a transient failure, so a
// partially broken connection is never reused.
type Factory func(ctx context.Context) (catalog.ResultWriter, error)

// Config controls Resilient behavior.
type Config struct {
	MaxRetries int
	Backoff    Schedule
}

// Resilient wraps a catalog.ResultWriter with the retry taxonomy: transient
// and unknown errors back off, reconnect and retry up to MaxRetries total
// attempts; permanent errors fail immediately. The store handle is guarded
// by a mutex so parallel writers cannot race on reconnect.
type Resilient struct {
	mu      sync.Mutex
	store   catalog.ResultWriter
	factory Factory
	cfg     Config
	sleeper catalog.Sleeper
	logger  *zap.Logger
}

type closer interface {
	Close()
}

// NewResilient constructs a Resilient writer around an initial store handle.
func NewResilient(
	store catalog.ResultWriter,
	factory Factory,
	cfg Config,
	sleeper catalog.Sleeper,
	logger *zap.Logger,
) *Resilient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resilient{
		store:   store,
		factory: factory,
		cfg:     cfg,
		sleeper: sleeper,
		logger:  logger,
	}
}

// Write persists one result, reporting whether it was recorded. A false
// return leaves the stored row untouched; the item stays actionable for a
// future run.
func (w *Resilient) Write(ctx context.Context, res catalog.FetchResult) bool {
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		err := w.current().WriteResult(ctx, res)
		if err == nil {
			return true
		}

		kind := catalog.Classify(err)
		if kind == catalog.KindPermanent {
			w.logger.Error("store rejected result",
				zap.String("id", res.ID),
				zap.Error(err),
			)
			return false
		}
		if attempt == w.cfg.MaxRetries {
			w.logger.Error("write retries exhausted",
				zap.String("id", res.ID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return false
		}

		delay := w.cfg.Backoff.Delay(attempt)
		w.logger.Warn("store write failed, retrying",
			zap.String("id", res.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", w.cfg.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveWriteRetry()

		w.sleeper.Sleep(ctx, delay)
		if ctx.Err() != nil {
			return false
		}
		w.reconnect(ctx)
	}
	return false
}

// Close releases the store handle currently held by the writer. Handles
// superseded by reconnects are already closed; this covers the last one.
func (w *Resilient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.store.(closer); ok {
		c.Close()
	}
}

func (w *Resilient) current() catalog.ResultWriter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store
}

// reconnect discards the current handle and builds a fresh one. On factory
// failure the old handle stays in place; the next attempt will back off
// again anyway.
func (w *Resilient) reconnect(ctx context.Context) {
	if w.factory == nil {
		return
	}
	fresh, err := w.factory(ctx)
	if err != nil {
		w.logger.Warn("store reconnect failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.store
	w.store = fresh
	w.mu.Unlock()

	if c, ok := old.(closer); ok {
		c.Close()
	}
}
