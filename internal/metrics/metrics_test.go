// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordExport(t *testing.T) {
	before := testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultFailure))
	RecordExport(10*time.Millisecond, errors.New("read failed"))
	after := testutil.ToFloat64(ExportsTotal.WithLabelValues(ResultFailure))
	if after != before+1 {
		t.Errorf("exports failure counter = %v, want %v", after, before+1)
	}
}

func TestRecordReconciledIgnoresZero(t *testing.T) {
	c := ReconciledRecords.WithLabelValues("items", "added")
	before := testutil.ToFloat64(c)

	RecordReconciled("items", "added", 0)
	if got := testutil.ToFloat64(c); got != before {
		t.Errorf("zero count changed counter: %v -> %v", before, got)
	}

	RecordReconciled("items", "added", 3)
	if got := testutil.ToFloat64(c); got != before+3 {
		t.Errorf("counter = %v, want %v", got, before+3)
	}
}

func TestRecordOutboxProcessed(t *testing.T) {
	tests := []struct {
		name   string
		ok     bool
		result string
	}{
		{"handler succeeded", true, ResultSuccess},
		{"handler failed", false, ResultFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := OutboxProcessed.WithLabelValues("backupFile", tt.result)
			before := testutil.ToFloat64(c)
			RecordOutboxProcessed("backupFile", tt.ok)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("blob-upload", "closed", "open", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("blob-upload")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
}
