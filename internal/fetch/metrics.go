package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for history fetching.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstscrobbles_pages_fetched_total",
		Help: "Total number of history pages fetched successfully",
	})

	pagesMissingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstscrobbles_pages_missing_total",
		Help: "Total number of history pages dropped after exhausting retries",
	})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "firstscrobbles_request_duration_seconds",
		Help:    "Duration of single Last.fm page requests in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firstscrobbles_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "firstscrobbles_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstscrobbles_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstscrobbles_batches_total",
		Help: "Total number of page batches completed",
	})
)
