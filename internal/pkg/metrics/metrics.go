// Package metrics provides Prometheus metrics for the OpenViking backend
// (RED + storage + retrieval + recorder). Scrapeable at /metrics;
// dashboards and runbooks can rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "openviking"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~3.8s
		},
		[]string{"method", "path"},
	)

	// AuthResolutionsTotal counts API-key resolutions by outcome
	// (success, unauthenticated, suspended).
	AuthResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_resolutions_total",
			Help:      "Total number of API key resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// VectorSearchTotal counts vector searches by outcome.
	VectorSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_search_total",
			Help:      "Total number of vector search calls by outcome.",
		},
		[]string{"outcome"},
	)

	// VectorSearchDurationSeconds is vector search latency.
	VectorSearchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_search_duration_seconds",
			Help:      "Vector search duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10),
		},
	)

	// MemoriesExtractedTotal counts memories persisted by session commits.
	MemoriesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_extracted_total",
			Help:      "Total number of memories extracted from committed sessions.",
		},
	)

	// MemoriesDedupSkippedTotal counts extraction candidates skipped as
	// duplicates of existing memories.
	MemoriesDedupSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_dedup_skipped_total",
			Help:      "Total number of extracted memories skipped by similarity dedup.",
		},
	)

	// RecorderQueueDroppedTotal counts records dropped on queue overflow.
	RecorderQueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_queue_dropped_total",
			Help:      "Total number of IO records dropped because the writer queue was full.",
		},
	)

	// WebSocketConnectionsActive is current number of trace-stream clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// RateLimitedTotal counts requests rejected by the per-account limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by per-account rate limiting.",
		},
		[]string{"account"},
	)
)
