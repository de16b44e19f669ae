// Package pipeline implements the batch enrichment loop: a bounded worker
// pool over pending catalog rows and the orchestrator that drains them.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
	"github.com/dosevalidator/dpd-enricher/internal/metrics"
)

// FetcherFactory builds a fetcher for one worker slot. Each slot owns its
// own instance so mutable client state is never shared across goroutines.
type FetcherFactory func() catalog.Fetcher

// Pool fans a batch out across a fixed number of concurrent fetch slots.
type Pool struct {
	workers int
	factory FetcherFactory
	clock   catalog.Clock
	logger  *zap.Logger
}

// NewPool constructs a Pool with the given concurrency bound.
func NewPool(workers int, factory FetcherFactory, clock catalog.Clock, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		factory: factory,
		clock:   clock,
		logger:  logger,
	}
}

// Process dispatches the batch across the pool and streams classified
// results in completion order. The channel closes once every item has a
// result or the context finishes.
func (p *Pool) Process(ctx context.Context, batch []catalog.WorkItem) <-chan catalog.FetchResult {
	jobs := make(chan catalog.WorkItem)
	out := make(chan catalog.FetchResult)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetcher := p.factory()
			for item := range jobs {
				select {
				case out <- p.processItem(ctx, fetcher, item):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range batch {
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// processItem wraps one fetch with the outcome classification. Fetch errors
// never escape; they become a failed result for that item.
func (p *Pool) processItem(ctx context.Context, fetcher catalog.Fetcher, item catalog.WorkItem) catalog.FetchResult {
	metrics.WorkerStarted()
	defer metrics.WorkerDone()

	start := time.Now()
	info, err := fetcher.Fetch(ctx, item.DrugCode)
	metrics.ObserveFetchDuration(time.Since(start))

	res := catalog.FetchResult{
		ID:        item.ID,
		DrugCode:  item.DrugCode,
		CheckedAt: p.clock.Now(),
	}

	switch {
	case err != nil:
		res.Status = catalog.StatusFailed
		res.ErrorText = err.Error()
		p.logger.Debug("fetch failed",
			zap.String("drug_code", item.DrugCode),
			zap.Error(err),
		)
	case info.PDFURL == "":
		res.Status = catalog.StatusNoPDF
		res.MonographDate = info.MonographDate
		res.ErrorText = catalog.NoPDFMessage
	default:
		res.Status = catalog.StatusReady
		res.PDFURL = info.PDFURL
		res.MonographDate = info.MonographDate
	}

	return res
}
