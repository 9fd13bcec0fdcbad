// Package metrics exposes the Prometheus collectors of the caching layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Write statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	// Cache metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachcache_cache_lookups_total",
			Help: "Total number of cache lookups by content type and result",
		},
		[]string{"content_type", "result"},
	)

	CacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachcache_cache_writes_total",
			Help: "Total number of cache writes by content type and status",
		},
		[]string{"content_type", "status"},
	)

	CacheEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sprachcache_cache_evicted_entries_total",
			Help: "Total number of stale entries removed by maintenance",
		},
	)

	// Gateway metrics
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachcache_gateway_requests_total",
			Help: "Total number of TTS gateway requests by outcome",
		},
		[]string{"outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sprachcache_gateway_request_duration_seconds",
			Help:    "TTS gateway request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~13s
		},
	)

	// Playback metrics
	PlaybackSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachcache_playback_sessions_total",
			Help: "Total number of playback sessions by audio source",
		},
		[]string{"source"},
	)

	FallbackActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachcache_fallback_activations_total",
			Help: "Total number of switches to local speech by triggering error code",
		},
		[]string{"code"},
	)
)
