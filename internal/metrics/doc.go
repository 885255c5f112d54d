// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Package metrics provides Prometheus instrumentation for Menuvault.

Metrics are registered with the default registry through promauto and are
exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Backup Metrics:
  - menuvault_exports_total: Snapshot exports (counter)
    Labels: result
  - menuvault_export_duration_seconds: Export latency (histogram)
  - menuvault_backups_total: Backups recorded in the catalog (counter)
    Labels: trigger, result

Transport Metrics:
  - menuvault_upload_attempts_total: Upload strategy attempts (counter)
    Labels: strategy, outcome
  - menuvault_upload_bytes_total: Bytes written to the blob store (counter)
  - menuvault_downloads_total: Package resolutions (counter)
    Labels: source, result

Reconciliation Metrics:
  - menuvault_restores_total: Restore operations (counter)
    Labels: mode, result
  - menuvault_reconciled_records_total: Per-record outcomes (counter)
    Labels: collection, outcome
  - menuvault_rollbacks_total: Replace rollbacks (counter)
    Labels: result

Outbox Metrics:
  - menuvault_outbox_depth: Items waiting in the outbox (gauge)
  - menuvault_outbox_processed_total: Handler outcomes (counter)
    Labels: kind, result

API Metrics:
  - menuvault_api_requests_total and menuvault_api_request_duration_seconds
    Labels: method, endpoint, status_code

Circuit Breaker Metrics:
  - menuvault_circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - menuvault_circuit_breaker_state_transitions_total

# Usage

	start := time.Now()
	pkg, err := exporter.Export(ctx)
	metrics.RecordExport(time.Since(start), err)
*/
package metrics
