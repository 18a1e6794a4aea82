// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package metrics holds the Prometheus collectors for Dashline.
//
// Collectors are registered on the default registry at init via promauto and
// exposed on /metrics by the API router. Packages record through the Record*
// helpers rather than touching collectors directly where a helper exists.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query cache metrics

	QueryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_cache_hits_total",
			Help: "Reads served from a fresh cache entry",
		},
		[]string{"operation"},
	)

	QueryCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_cache_misses_total",
			Help: "Reads that found no entry or a stale entry",
		},
		[]string{"operation"},
	)

	QueryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_fetches_total",
			Help: "Fetches issued to the backend by result",
		},
		[]string{"operation", "result"}, // result: success, error, discarded
	)

	QueryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashline_query_fetch_duration_seconds",
			Help:    "Fetch duration including retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	QueryDedupJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_dedup_joins_total",
			Help: "Reads that joined an in-flight fetch instead of starting one",
		},
		[]string{"operation"},
	)

	QueryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_retries_total",
			Help: "Automatic retries after a failed fetch",
		},
		[]string{"operation"},
	)

	QueryInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_query_invalidations_total",
			Help: "Cache entries marked stale by invalidation",
		},
		[]string{"operation"},
	)

	QueryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashline_query_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	QueryObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashline_query_observers",
			Help: "Current number of open observers across all keys",
		},
	)

	QueryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashline_query_evictions_total",
			Help: "Inactive entries removed after GC time or capacity pressure",
		},
	)

	// Mutation metrics

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_mutations_total",
			Help: "Mutations by result",
		},
		[]string{"mutation", "result"}, // result: success, error
	)

	// Filter metrics

	FilterChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_filter_changes_total",
			Help: "Date range changes by source",
		},
		[]string{"source"}, // source: range, preset
	)

	FilterPersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashline_filter_persist_errors_total",
			Help: "Failures writing the date range to durable storage",
		},
	)

	// Backend metrics

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashline_backend_requests_total",
			Help: "Requests sent to the managed backend",
		},
		[]string{"kind", "target", "status_code"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashline_backend_request_duration_seconds",
			Help:    "Backend request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "target"},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Connected dashboard WebSocket clients",
		},
	)
)

// RecordFetch records the outcome of one fetch cycle (including retries).
func RecordFetch(operation string, duration time.Duration, err error) {
	QueryFetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		QueryFetches.WithLabelValues(operation, "error").Inc()
		return
	}
	QueryFetches.WithLabelValues(operation, "success").Inc()
}

// RecordDiscardedFetch records a completion dropped for being out of date.
func RecordDiscardedFetch(operation string) {
	QueryFetches.WithLabelValues(operation, "discarded").Inc()
}

// RecordMutation records a mutation outcome.
func RecordMutation(name string, err error) {
	if err != nil {
		Mutations.WithLabelValues(name, "error").Inc()
		return
	}
	Mutations.WithLabelValues(name, "success").Inc()
}

// RecordBackendRequest records a backend round trip.
func RecordBackendRequest(kind, target, statusCode string, duration time.Duration) {
	BackendRequests.WithLabelValues(kind, target, statusCode).Inc()
	BackendRequestDuration.WithLabelValues(kind, target).Observe(duration.Seconds())
}

// RecordAPIRequest records an inbound API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
