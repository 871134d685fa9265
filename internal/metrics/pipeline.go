package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Release pipeline Prometheus metrics.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of release API requests",
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Release API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	ReleasesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_fetched_total",
			Help:      "Releases downloaded and extracted",
		},
		[]string{"status"}, // "success" / "error"
	)

	ReleaseFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "release_fetch_duration_seconds",
			Help:      "Time to download and extract one release",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	DocumentsIndexed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents_indexed",
			Help:      "Resources held in the store per version",
		},
		[]string{"version"},
	)

	DocumentsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_skipped_total",
			Help:      "Files not indexed, by reason",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Must be called from main;
// repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			UpstreamRequestsTotal,
			UpstreamRequestDuration,
			ReleasesFetchedTotal,
			ReleaseFetchDuration,
			DocumentsIndexed,
			DocumentsSkippedTotal,
		)
	})
}
