// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package models

import (
	"fmt"
)

// Restore modes
const (
	ModeMerge   = "merge"
	ModeReplace = "replace"
)

// ConflictStrategy decides what a merge does when an incoming record collides
// with a live record that differs from it.
type ConflictStrategy string

// Conflict strategies
const (
	ConflictMerge     ConflictStrategy = "merge"
	ConflictOverwrite ConflictStrategy = "overwrite"
	ConflictSkip      ConflictStrategy = "skip"
)

// Valid reports whether s is a known strategy.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case ConflictMerge, ConflictOverwrite, ConflictSkip:
		return true
	}
	return false
}

// IDHandling decides which id a newly added record receives.
type IDHandling string

// ID handling modes
const (
	IDPreserve IDHandling = "preserve"
	IDGenerate IDHandling = "generate"
)

// Valid reports whether h is a known mode.
func (h IDHandling) Valid() bool {
	return h == IDPreserve || h == IDGenerate
}

// Counts holds a per-collection counter keyed by package collection key.
type Counts map[string]int

// NewCounts returns counts with every collection present at zero.
func NewCounts() Counts {
	c := make(Counts, len(Collections))
	for _, col := range Collections {
		c[col.Key] = 0
	}
	return c
}

// Total sums all collections.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// FailedRecord describes a record (or a whole collection when ID is nil)
// that could not be reconciled.
type FailedRecord struct {
	Collection string `json:"collection"`
	ID         any    `json:"id,omitempty"`
	Error      string `json:"error"`
}

// MergeReport is the result of a merge restore.
type MergeReport struct {
	Added    Counts         `json:"added"`
	Updated  Counts         `json:"updated"`
	Skipped  Counts         `json:"skipped"`
	NoChange Counts         `json:"noChange"`
	Failed   []FailedRecord `json:"failed"`
	DryRun   bool           `json:"dryRun,omitempty"`
}

// NewMergeReport returns an empty report with zeroed counters.
func NewMergeReport() *MergeReport {
	return &MergeReport{
		Added:    NewCounts(),
		Updated:  NewCounts(),
		Skipped:  NewCounts(),
		NoChange: NewCounts(),
		Failed:   make([]FailedRecord, 0),
	}
}

// Processed returns the number of records accounted for in a collection,
// including failures.
func (r *MergeReport) Processed(collection string) int {
	n := r.Added[collection] + r.Updated[collection] + r.Skipped[collection] + r.NoChange[collection]
	for _, f := range r.Failed {
		if f.Collection == collection && f.ID != nil {
			n++
		}
	}
	return n
}

// Err returns ErrReconciliationPartialFailure when any record failed.
func (r *MergeReport) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d record(s) failed", ErrReconciliationPartialFailure, len(r.Failed))
}

// ReplaceReport is the per-collection outcome of a successful replace.
type ReplaceReport struct {
	Deleted Counts `json:"deleted"`
	Added   Counts `json:"added"`
}

// NewReplaceReport returns an empty replace report.
func NewReplaceReport() *ReplaceReport {
	return &ReplaceReport{Deleted: NewCounts(), Added: NewCounts()}
}

// ReplaceResult is the outcome of a replace restore. On failure Report holds
// whatever progress was made before the error and RolledBack tells whether the
// pre-restore snapshot was re-applied.
type ReplaceResult struct {
	Success        bool           `json:"success"`
	PreSnapshotID  string         `json:"preSnapshotId,omitempty"`
	Report         *ReplaceReport `json:"report,omitempty"`
	RolledBack     bool           `json:"rolledBack"`
	Error          string         `json:"error,omitempty"`
	RollbackReport *MergeReport   `json:"rollbackReport,omitempty"`
}
