// -------------------------------------------------------------------------------
// Metrics - Prometheus Instrumentation
//
// Author: Alex Freidah
//
// Prometheus metric definitions for the Kafka REST proxy. Tracks request
// counts and latencies, client cache activity (hits, misses, evictions,
// expirations), and teardown failures. All metrics are prefixed with
// 'kafkaproxy_' for easy identification in dashboards and alerting rules.
// -------------------------------------------------------------------------------

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Version is the service version, stamped at build time via -ldflags.
var Version = "dev"

// -------------------------------------------------------------------------
// METRIC DEFINITIONS
// -------------------------------------------------------------------------

var (
	// --- Request metrics ---

	// RequestsTotal counts all HTTP requests by operation and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafkaproxy_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"operation", "status_code"},
	)

	// RequestDuration tracks request latency distribution by operation.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafkaproxy_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// InflightRequests tracks currently processing requests.
	InflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kafkaproxy_inflight_requests",
			Help: "Number of requests currently being processed",
		},
	)

	// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kafkaproxy_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// --- Client cache metrics ---

	// CacheSize tracks the number of broker clients currently cached.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kafkaproxy_client_cache_size",
			Help: "Number of broker clients currently held in the cache",
		},
	)

	// CacheFetchesTotal counts cache lookups by outcome (hit or miss).
	CacheFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafkaproxy_client_cache_fetches_total",
			Help: "Total number of client cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// CacheEvictionsTotal counts clients evicted for capacity.
	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kafkaproxy_client_cache_evictions_total",
			Help: "Total number of broker clients evicted by the LRU policy",
		},
	)

	// CacheExpirationsTotal counts clients removed by the keep-alive sweep.
	CacheExpirationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kafkaproxy_client_cache_expirations_total",
			Help: "Total number of broker clients expired by the keep-alive sweep",
		},
	)

	// ClientStopFailuresTotal counts failed broker client teardowns.
	ClientStopFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kafkaproxy_client_stop_failures_total",
			Help: "Total number of broker client stop attempts that failed",
		},
	)

	// ServiceRestartsTotal counts background service restarts by service name.
	ServiceRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafkaproxy_service_restarts_total",
			Help: "Total number of background service restarts after a panic or unexpected exit",
		},
		[]string{"service"},
	)

	// --- Audit metrics ---

	// AuditEventsTotal counts emitted audit log events by event name.
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafkaproxy_audit_events_total",
			Help: "Total number of audit events emitted",
		},
		[]string{"event"},
	)

	// --- Info metric ---

	// BuildInfo exposes version information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafkaproxy_build_info",
			Help: "Build information for the Kafka REST proxy",
		},
		[]string{"version", "go_version"},
	)
)
