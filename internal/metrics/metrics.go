// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPartial = "partial"
	ResultQueued  = "queued"
)

var (
	// Export Metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_exports_total",
			Help: "Total number of snapshot exports",
		},
		[]string{"result"},
	)

	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "menuvault_export_duration_seconds",
			Help:    "Duration of snapshot exports in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_backups_total",
			Help: "Total number of backups recorded in the catalog",
		},
		[]string{"trigger", "result"},
	)

	// Transport Metrics
	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_upload_attempts_total",
			Help: "Total number of upload strategy attempts",
		},
		[]string{"strategy", "outcome"}, // outcome: "success", "retryable", "fatal"
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menuvault_upload_bytes_total",
			Help: "Total bytes written to the blob store",
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_downloads_total",
			Help: "Total number of backup payload resolutions",
		},
		[]string{"source", "result"}, // source: "payload", "file_url", "storage_path", "none"
	)

	// Reconciliation Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_restores_total",
			Help: "Total number of restore operations",
		},
		[]string{"mode", "result"},
	)

	RestoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menuvault_restore_duration_seconds",
			Help:    "Duration of restore operations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	ReconciledRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_reconciled_records_total",
			Help: "Total number of records reconciled, by outcome",
		},
		[]string{"collection", "outcome"}, // outcome: "added", "updated", "skipped", "no_change", "failed"
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_rollbacks_total",
			Help: "Total number of replace rollbacks",
		},
		[]string{"result"},
	)

	// Outbox Metrics
	OutboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuvault_outbox_depth",
			Help: "Current number of items waiting in the outbox",
		},
	)

	OutboxEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_outbox_enqueued_total",
			Help: "Total number of items added to the outbox",
		},
		[]string{"kind"},
	)

	OutboxProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_outbox_processed_total",
			Help: "Total number of outbox handler invocations",
		},
		[]string{"kind", "result"}, // result: "success", "failure"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menuvault_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menuvault_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuvault_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menuvault_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordExport records a snapshot export.
func RecordExport(duration time.Duration, err error) {
	ExportDuration.Observe(duration.Seconds())
	ExportsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordBackup records a backup creation attempt.
func RecordBackup(trigger string, err error) {
	BackupsTotal.WithLabelValues(trigger, resultLabel(err)).Inc()
}

// RecordUploadAttempt records one strategy attempt.
func RecordUploadAttempt(strategy, outcome string) {
	UploadAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordDownload records a payload resolution.
func RecordDownload(source string, err error) {
	DownloadsTotal.WithLabelValues(source, resultLabel(err)).Inc()
}

// RecordRestore records a restore operation. Partial merges count as
// "partial" rather than as failures.
func RecordRestore(mode string, duration time.Duration, result string) {
	RestoreDuration.WithLabelValues(mode).Observe(duration.Seconds())
	RestoresTotal.WithLabelValues(mode, result).Inc()
}

// RecordReconciled adds n records with the given outcome.
func RecordReconciled(collection, outcome string, n int) {
	if n <= 0 {
		return
	}
	ReconciledRecords.WithLabelValues(collection, outcome).Add(float64(n))
}

// RecordRollback records a rollback attempt.
func RecordRollback(err error) {
	RollbacksTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordOutboxProcessed records one handler invocation.
func RecordOutboxProcessed(kind string, ok bool) {
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	OutboxProcessed.WithLabelValues(kind, result).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCircuitBreakerTransition records a breaker state change. States are
// encoded the way gobreaker orders them.
func RecordCircuitBreakerTransition(name, from, to string, toState int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(toState))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
