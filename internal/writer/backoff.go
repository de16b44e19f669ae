// Package writer persists enrichment results with classification-aware
// retry, backoff and store reconnection.
package writer

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Schedule computes the jittered exponential delay before a retry.
// Delay(attempt) = base * 2^(attempt-1) + jitter, with attempt 1-based.
type Schedule struct {
	Base   time.Duration
	Jitter time.Duration

	// jitterFn overrides the random jitter source in tests.
	jitterFn func(limit time.Duration) time.Duration
}

// NewSchedule builds a schedule with a cryptographic jitter source.
func NewSchedule(base, jitter time.Duration) Schedule {
	return Schedule{Base: base, Jitter: jitter}
}

// Delay returns the wait duration before the given 1-based attempt's retry.
func (s Schedule) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.Base << uint(attempt-1)
	jitter := s.jitterFn
	if jitter == nil {
		jitter = randomJitter
	}
	return delay + jitter(s.Jitter)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
