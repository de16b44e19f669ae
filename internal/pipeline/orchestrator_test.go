package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

// fakeSource serves queued batches in order, then empties.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]catalog.WorkItem
	calls   int
	err     error
}

func (s *fakeSource) PendingBatch(_ context.Context, _ int) ([]catalog.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// fakeSink records written results; ids in failIDs report write failure.
type fakeSink struct {
	mu      sync.Mutex
	written []catalog.FetchResult
	failIDs map[string]bool
}

func (s *fakeSink) Write(_ context.Context, res catalog.FetchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, res)
	return !s.failIDs[res.ID]
}

type instantSleeper struct{}

func (instantSleeper) Sleep(context.Context, time.Duration) {}

func items(ids ...string) []catalog.WorkItem {
	out := make([]catalog.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.WorkItem{ID: id, DrugCode: id})
	}
	return out
}

func newTestOrchestrator(source *fakeSource, sink *fakeSink, fetcher catalog.Fetcher) *Orchestrator {
	pool := NewPool(2, func() catalog.Fetcher { return fetcher }, &fakeClock{now: time.Now()}, zap.NewNop())
	o := NewOrchestrator(source, pool, sink, instantSleeper{}, Config{
		BatchSize: 10,
		LogEvery:  500,
	}, zap.NewNop())
	o.jitterFn = func(time.Duration) time.Duration { return 0 }
	return o
}

func TestOrchestrator_DrainsUntilEmpty(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]catalog.WorkItem{
		items("a", "b", "c"),
		items("d", "e"),
		items("f"),
	}}
	sink := &fakeSink{}
	fetcher := &fakeFetcher{
		pages: map[string]catalog.PageInfo{
			"a": {PDFURL: "https://pdf.hres.ca/dpd_pm/1.PDF"},
			"b": {PDFURL: "https://pdf.hres.ca/dpd_pm/2.PDF"},
			"c": {},
			"d": {PDFURL: "https://pdf.hres.ca/dpd_pm/3.PDF"},
			"e": {},
		},
		errs: map[string]error{
			"f": errors.New("timeout"),
		},
	}

	totals, err := newTestOrchestrator(source, sink, fetcher).Run(context.Background())
	require.NoError(t, err)

	// 3 non-empty batches + 1 empty terminator
	require.Equal(t, 4, source.calls)
	require.Equal(t, 6, totals.Checked)
	require.Equal(t, 3, totals.Found)
	require.Equal(t, 2, totals.NoPDF)
	require.Equal(t, 1, totals.FailedFetch)
	require.Equal(t, 0, totals.FailedWrite)
	require.Equal(t, totals.Checked, totals.Found+totals.NoPDF+totals.FailedFetch)
	require.Len(t, sink.written, 6)
}

func TestOrchestrator_EmptyCatalogStopsImmediately(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	sink := &fakeSink{}
	fetcher := &fakeFetcher{pages: map[string]catalog.PageInfo{}}

	totals, err := newTestOrchestrator(source, sink, fetcher).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
	require.Zero(t, totals.Checked)
	require.Empty(t, sink.written)
}

func TestOrchestrator_CountsWriteFailures(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]catalog.WorkItem{items("a", "b")}}
	sink := &fakeSink{failIDs: map[string]bool{"b": true}}
	fetcher := &fakeFetcher{pages: map[string]catalog.PageInfo{
		"a": {PDFURL: "https://pdf.hres.ca/dpd_pm/1.PDF"},
		"b": {PDFURL: "https://pdf.hres.ca/dpd_pm/2.PDF"},
	}}

	totals, err := newTestOrchestrator(source, sink, fetcher).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, totals.Checked)
	require.Equal(t, 2, totals.Found)
	require.Equal(t, 1, totals.FailedWrite)
}

func TestOrchestrator_BatchQueryErrorStopsRun(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("store unavailable")}
	sink := &fakeSink{}
	fetcher := &fakeFetcher{pages: map[string]catalog.PageInfo{}}

	_, err := newTestOrchestrator(source, sink, fetcher).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "pending batch")
}

func TestOrchestrator_CanceledContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &fakeSource{batches: [][]catalog.WorkItem{items("a")}}
	sink := &fakeSink{}
	fetcher := &fakeFetcher{pages: map[string]catalog.PageInfo{}}

	_, err := newTestOrchestrator(source, sink, fetcher).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, source.calls)
}

func TestOrchestrator_FailedFetchStillWritten(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]catalog.WorkItem{items("x")}}
	sink := &fakeSink{}
	fetcher := &fakeFetcher{
		pages: map[string]catalog.PageInfo{},
		errs:  map[string]error{"x": errors.New("connection reset")},
	}

	totals, err := newTestOrchestrator(source, sink, fetcher).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, totals.FailedFetch)
	require.Len(t, sink.written, 1)
	require.Equal(t, catalog.StatusFailed, sink.written[0].Status)
	require.Contains(t, sink.written[0].ErrorText, "connection reset")
}
