package clients

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bioetl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"host", "status"},
	)

	httpRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bioetl",
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Total number of retried API requests",
		},
		[]string{"host"},
	)

	httpRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bioetl",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected before sending",
		},
		[]string{"host", "reason"},
	)
)

// statusLabel maps a status code to its class, "error" for transport errors.
func statusLabel(code int, err error) string {
	if err != nil && code == 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

func recordRequest(host string, code int, d time.Duration, err error) {
	httpRequestDuration.WithLabelValues(host, statusLabel(code, err)).Observe(d.Seconds())
}
