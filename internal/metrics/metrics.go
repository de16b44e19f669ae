// Package metrics exposes Prometheus collectors for the enricher service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal           *prometheus.CounterVec
	writeRetriesTotal    prometheus.Counter
	writeFailuresTotal   prometheus.Counter
	activeWorkers        prometheus.Gauge
	fetchDurationSeconds prometheus.Histogram
	batchesTotal         prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_items_total",
				Help: "Total number of catalog items processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		writeRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_write_retries_total",
				Help: "Total number of store write retries after transient failures.",
			},
		)

		writeFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_write_failures_total",
				Help: "Total number of results that could not be persisted.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "enricher_active_workers",
				Help: "Number of worker slots currently fetching a page.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enricher_fetch_duration_seconds",
				Help:    "Histogram of product page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
		)

		batchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_batches_total",
				Help: "Total number of pending batches pulled from the catalog.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one processed item by outcome status.
func ObserveItem(status string) {
	Init()
	itemsTotal.WithLabelValues(status).Inc()
}

// ObserveWriteRetry counts one write retry.
func ObserveWriteRetry() {
	Init()
	writeRetriesTotal.Inc()
}

// ObserveWriteFailure counts one permanently failed write.
func ObserveWriteFailure() {
	Init()
	writeFailuresTotal.Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	Init()
	activeWorkers.Inc()
}

// WorkerDone decrements the active worker gauge.
func WorkerDone() {
	Init()
	activeWorkers.Dec()
}

// ObserveFetchDuration records one page fetch latency.
func ObserveFetchDuration(d time.Duration) {
	Init()
	fetchDurationSeconds.Observe(d.Seconds())
}

// ObserveBatch counts one pulled batch.
func ObserveBatch() {
	Init()
	batchesTotal.Inc()
}
