package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry through promauto and
// exposed by the server on GET /metrics.

var (
	// HttpRequestsTotal counts requests by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedreduce_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedreduce_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// ReductionDuration measures the decomposition alone, excluding decoding and encoding.
	// The source label is "http" or "mcp".
	ReductionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedreduce_reduction_duration_seconds",
			Help:    "Duration of PCA fit and projection in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"source"},
	)

	// ReductionsTotal counts reductions by source and outcome.
	// Outcome is "ok" or an error kind (validation, computation, transport, canceled).
	ReductionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedreduce_reductions_total",
			Help: "Total number of reduction requests by outcome",
		},
		[]string{"source", "outcome"},
	)

	// InputSamples tracks the number of rows per accepted request.
	InputSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedreduce_input_samples",
			Help:    "Number of embeddings per accepted request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
	)

	// InputFeatures tracks the embedding width per accepted request.
	InputFeatures = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedreduce_input_features",
			Help:    "Embedding dimensionality per accepted request",
			Buckets: []float64{2, 16, 64, 128, 256, 384, 512, 768, 1024, 1536, 3072, 4096},
		},
	)

	// InFlightReductions is the number of decompositions currently running.
	InFlightReductions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedreduce_reductions_in_flight",
			Help: "Number of PCA decompositions currently running",
		},
	)
)
