package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imas_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Processing metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imas_requests_total",
			Help: "Total number of match and detect requests",
		},
		[]string{"type", "status"}, // type: match, detect
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imas_processing_duration_seconds",
			Help:    "Detection and matching duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"type"},
	)

	generalizedKeypoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imas_generalized_keypoints",
			Help:    "Number of generalized keypoints per detected image",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
	)

	matchesFound = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imas_matches",
			Help:    "Number of matches per image pair",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"stage"}, // stage: raw, filtered
	)

	modelsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imas_models_total",
			Help: "Robust filter outcomes",
		},
		[]string{"filter", "accepted"},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imas_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"limit"},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imas_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)
)
