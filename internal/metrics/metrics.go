// Package metrics provides Prometheus metrics for the mail store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestTotal counts inbound ingestion outcomes.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total inbound messages by outcome (delivered, spam, bounced, error)",
		},
		[]string{"outcome"},
	)

	// IngestDuration measures end-to-end ingestion pipeline duration.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mailstore",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Inbound ingestion pipeline duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// IngestBytes counts bytes admitted into storage by ingestion.
	IngestBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total message bytes admitted by ingestion",
		},
	)
)

var (
	// BlobOpsTotal counts blob backend operations by type and result.
	BlobOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "blob",
			Name:      "operations_total",
			Help:      "Total blob store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// CleanupRunsTotal counts completed orphan cleanup sweeps.
	CleanupRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Total completed orphan cleanup sweeps",
		},
	)

	// CleanupOrphansDeleted counts orphaned blobs removed by the sweep.
	CleanupOrphansDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "cleanup",
			Name:      "orphans_deleted_total",
			Help:      "Total orphaned attachment blobs deleted",
		},
	)
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailstore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailstore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
