package writer

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

type scriptedStore struct {
	mu       sync.Mutex
	fails    int
	failKind catalog.ErrorKind
	attempts int
	closed   bool
}

func (s *scriptedStore) WriteResult(_ context.Context, _ catalog.FetchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.fails {
		return catalog.WithKind(s.failKind, errors.New("simulated store failure"))
	}
	return nil
}

func (s *scriptedStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *scriptedStore) totalAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

type noopSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *noopSleeper) Sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
}

// sharedAttempts ties a chain of reconnected stores to one attempt budget so
// tests can script failures across reconnects.
type sharedAttempts struct {
	mu       sync.Mutex
	fails    int
	failKind catalog.ErrorKind
	attempts int
	replaced int
}

func (s *sharedAttempts) newStore(context.Context) (catalog.ResultWriter, error) {
	s.mu.Lock()
	s.replaced++
	s.mu.Unlock()
	return &sharedStore{script: s}, nil
}

type sharedStore struct {
	script *sharedAttempts
}

func (s *sharedStore) WriteResult(_ context.Context, _ catalog.FetchResult) error {
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	s.script.attempts++
	if s.script.attempts <= s.script.fails {
		return catalog.WithKind(s.script.failKind, errors.New("simulated store failure"))
	}
	return nil
}

func newTestWriter(store catalog.ResultWriter, factory Factory, maxRetries int, sleeper catalog.Sleeper) *Resilient {
	sched := NewSchedule(time.Millisecond, 0)
	sched.jitterFn = func(time.Duration) time.Duration { return 0 }
	return NewResilient(store, factory, Config{
		MaxRetries: maxRetries,
		Backoff:    sched,
	}, sleeper, zap.NewNop())
}

func TestWrite_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{}
	w := newTestWriter(store, nil, 6, &noopSleeper{})

	require.True(t, w.Write(context.Background(), catalog.FetchResult{ID: "r1"}))
	require.Equal(t, 1, store.totalAttempts())
}

func TestWrite_TransientFailuresThenSuccess(t *testing.T) {
	t.Parallel()

	script := &sharedAttempts{fails: 5, failKind: catalog.KindTransient}
	first, err := script.newStore(context.Background())
	require.NoError(t, err)
	sleeper := &noopSleeper{}
	w := newTestWriter(first, script.newStore, 6, sleeper)

	require.True(t, w.Write(context.Background(), catalog.FetchResult{ID: "r2"}))
	require.Equal(t, 6, script.attempts)
	// one reconnect per failed attempt, plus the initial construction
	require.Equal(t, 6, script.replaced)
	require.Len(t, sleeper.sleeps, 5)
}

func TestWrite_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	script := &sharedAttempts{fails: 7, failKind: catalog.KindTransient}
	first, err := script.newStore(context.Background())
	require.NoError(t, err)
	w := newTestWriter(first, script.newStore, 6, &noopSleeper{})

	require.False(t, w.Write(context.Background(), catalog.FetchResult{ID: "r3"}))
	require.Equal(t, 6, script.attempts)
}

func TestWrite_PermanentFailsImmediately(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{fails: 10, failKind: catalog.KindPermanent}
	sleeper := &noopSleeper{}
	w := newTestWriter(store, nil, 6, sleeper)

	require.False(t, w.Write(context.Background(), catalog.FetchResult{ID: "r4"}))
	require.Equal(t, 1, store.totalAttempts())
	require.Empty(t, sleeper.sleeps)
}

func TestWrite_UnknownRetriedLikeTransient(t *testing.T) {
	t.Parallel()

	script := &sharedAttempts{fails: 2, failKind: catalog.KindUnknown}
	first, err := script.newStore(context.Background())
	require.NoError(t, err)
	w := newTestWriter(first, script.newStore, 6, &noopSleeper{})

	require.True(t, w.Write(context.Background(), catalog.FetchResult{ID: "r5"}))
	require.Equal(t, 3, script.attempts)
}

func TestWrite_ReconnectClosesOldHandle(t *testing.T) {
	t.Parallel()

	old := &scriptedStore{fails: 1, failKind: catalog.KindTransient}
	fresh := &scriptedStore{}
	factory := func(context.Context) (catalog.ResultWriter, error) {
		return fresh, nil
	}
	w := newTestWriter(old, factory, 6, &noopSleeper{})

	require.True(t, w.Write(context.Background(), catalog.FetchResult{ID: "r6"}))
	require.True(t, old.closed)
	require.Equal(t, 1, fresh.totalAttempts())
}

func TestClose_ReleasesInitialHandle(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{}
	w := newTestWriter(store, nil, 6, &noopSleeper{})

	w.Close()
	require.True(t, store.closed)
}

func TestClose_ReleasesReconnectedHandle(t *testing.T) {
	t.Parallel()

	old := &scriptedStore{fails: 1, failKind: catalog.KindTransient}
	fresh := &scriptedStore{}
	factory := func(context.Context) (catalog.ResultWriter, error) {
		return fresh, nil
	}
	w := newTestWriter(old, factory, 6, &noopSleeper{})

	require.True(t, w.Write(context.Background(), catalog.FetchResult{ID: "r8"}))
	w.Close()
	require.True(t, old.closed)
	require.True(t, fresh.closed)
}

func TestWrite_CanceledContextStops(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{fails: 10, failKind: catalog.KindTransient}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newTestWriter(store, nil, 6, &noopSleeper{})

	require.False(t, w.Write(ctx, catalog.FetchResult{ID: "r7"}))
	require.Equal(t, 1, store.totalAttempts())
}

func TestSchedule_Delay(t *testing.T) {
	t.Parallel()

	sched := NewSchedule(600*time.Millisecond, 0)
	sched.jitterFn = func(time.Duration) time.Duration { return 0 }

	require.Equal(t, 600*time.Millisecond, sched.Delay(1))
	require.Equal(t, 1200*time.Millisecond, sched.Delay(2))
	require.Equal(t, 2400*time.Millisecond, sched.Delay(3))
	require.Equal(t, 4800*time.Millisecond, sched.Delay(4))
}

func TestSchedule_JitterBounded(t *testing.T) {
	t.Parallel()

	sched := NewSchedule(100*time.Millisecond, 50*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := sched.Delay(1)
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.Less(t, d, 150*time.Millisecond)
	}
}
