// Package metrics exposes Prometheus metrics for bioetl extraction runs.
//
// Metrics are package-level collectors registered with the default registry
// on import. Components record through the helpers below rather than
// touching the vectors directly so label sets stay consistent.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	records, err := engine.ExtractAll(ctx)
//	metrics.ObserveExtraction("document", "pagination", timer.Stop(), len(records), err)
//
// Serve the metrics with:
//
//	http.Handle("/metrics", metrics.Handler())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bioetl"

var (
	// RecordsExtracted counts records returned by extraction
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "records_total",
			Help:      "Total number of records extracted",
		},
		[]string{"entity", "mode"},
	)

	// ExtractionDuration is the wall time of one extraction call
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Duration of extraction calls in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"entity", "mode", "status"},
	)

	// BatchesProcessed counts identifier batches sent
	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "batches_total",
			Help:      "Total number of identifier batches processed",
		},
		[]string{"entity"},
	)

	// BatchSize observes identifiers per batch
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "batch_size",
			Help:      "Number of identifiers per batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"entity"},
	)

	// PagesFetched counts pages read by the paginator
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "pages_total",
			Help:      "Total number of pages fetched",
		},
		[]string{"entity"},
	)

	// UnitFailures counts batches or page chains absorbed after a failure
	UnitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "unit_failures_total",
			Help:      "Total number of batch or page chain failures absorbed",
		},
		[]string{"entity", "mode"},
	)

	// CacheLookups counts response cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)

	// HandshakeAttempts counts release handshakes by outcome
	HandshakeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "release",
			Name:      "handshake_attempts_total",
			Help:      "Release handshake attempts by status",
		},
		[]string{"status"},
	)

	// RowsWritten counts rows written by output format
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "rows_total",
			Help:      "Total number of rows written",
		},
		[]string{"entity", "format"},
	)
)

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveExtraction records the outcome of one extraction call.
func ObserveExtraction(entity, mode string, d time.Duration, records int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExtractionDuration.WithLabelValues(entity, mode, status).Observe(d.Seconds())
	RecordsExtracted.WithLabelValues(entity, mode).Add(float64(records))
}

// ObserveBatch records one identifier batch.
func ObserveBatch(entity string, size int) {
	BatchesProcessed.WithLabelValues(entity).Inc()
	BatchSize.WithLabelValues(entity).Observe(float64(size))
}

// ObserveCache records a cache lookup.
func ObserveCache(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
