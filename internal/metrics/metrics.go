package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for API server
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Provider API metrics
var (
	// ProviderAPIResponseTime tracks API response times by provider and operation
	ProviderAPIResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spend_provider_api_response_time_seconds",
			Help:    "Response time of provider API calls by provider and operation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"provider", "operation"},
	)

	// ProviderAPICallsTotal counts API calls by provider, operation, and outcome
	ProviderAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spend_provider_api_calls_total",
			Help: "Total number of provider API calls by provider, operation, and status",
		},
		[]string{"provider", "operation", "status"},
	)

	// RateLimitWaitSeconds accumulates time spent waiting out 429 responses
	RateLimitWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spend_provider_rate_limit_wait_seconds_total",
			Help: "Total seconds spent waiting on provider Retry-After",
		},
		[]string{"provider"},
	)
)

// Ledger metrics
var (
	// SyncCycles counts sync cycles by provider and outcome
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spend_sync_cycles_total",
			Help: "Total number of sync cycles by provider and status",
		},
		[]string{"provider", "status"},
	)

	// SyncDuration tracks how long a full sync cycle takes
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spend_sync_duration_seconds",
			Help:    "Duration of sync cycles by provider",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		},
		[]string{"provider"},
	)

	// RecordsIngested counts records written to the ledger
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spend_records_ingested_total",
			Help: "Total number of spend records upserted by provider and source",
		},
		[]string{"provider", "source"},
	)

	// IngestRejected counts records rejected by manual or bulk ingest
	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spend_ingest_rejected_total",
			Help: "Total number of ingest records rejected by source and reason",
		},
		[]string{"source", "reason"},
	)

	// UpsertDuration tracks how long a batch upsert transaction takes
	UpsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spend_upsert_batch_duration_seconds",
			Help:    "Duration of ledger upsert transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	// UpsertFailures counts rolled back upsert transactions
	UpsertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spend_upsert_failures_total",
			Help: "Total number of upsert transactions rolled back",
		},
	)
)

// RecordHTTPRequest records the duration and increments the counter for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordProviderAPIResponseTime records the response time for a provider API call
func RecordProviderAPIResponseTime(provider, operation string, duration time.Duration) {
	ProviderAPIResponseTime.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderAPICall records a provider API call with its status
// status should be "success", "error", "rate_limited", or "network_error"
func RecordProviderAPICall(provider, operation, status string) {
	ProviderAPICallsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordRateLimitWait adds a Retry-After wait to the provider's total
func RecordRateLimitWait(provider string, wait time.Duration) {
	RateLimitWaitSeconds.WithLabelValues(provider).Add(wait.Seconds())
}

// RecordSyncCycle records the outcome and duration of a sync cycle
func RecordSyncCycle(provider, status string, duration time.Duration) {
	SyncCycles.WithLabelValues(provider, status).Inc()
	SyncDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRecordsIngested adds n upserted records for provider and source
func RecordRecordsIngested(provider, source string, n int) {
	RecordsIngested.WithLabelValues(provider, source).Add(float64(n))
}

// RecordIngestRejected increments the rejected ingest counter
func RecordIngestRejected(source, reason string) {
	IngestRejected.WithLabelValues(source, reason).Inc()
}

// RecordUpsert records a committed or rolled back upsert transaction
func RecordUpsert(duration time.Duration, failed bool) {
	UpsertDuration.Observe(duration.Seconds())
	if failed {
		UpsertFailures.Inc()
	}
}
