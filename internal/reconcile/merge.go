// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
merge.go - Merge Restore

For each collection in registry order, strictly one after another:

 1. Read the live collection once and index it by canonical domain id.
 2. For each incoming record, in package order:
    - invalid record                    -> failed
    - live match, structurally equal    -> noChange
    - live match, strategy "skip"       -> skipped
    - live match, strategy "overwrite"  -> Set incoming as-is, updated
    - live match, strategy "merge"      -> Set incoming over live, updated
      (noChange when the merged result equals the live record)
    - no match                          -> Add, added ("generate" assigns a
      fresh id first)
 3. The index is updated after every write, so a duplicate later in the
    same input sees the record written for the earlier one.

A store error on a record is reported in failed and the next record is
processed. A failed collection read is reported once without an id and the
next collection is processed.
*/

//nolint:staticcheck // File documentation, not package doc
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
)

// MergeOptions controls RestoreFromExport.
type MergeOptions struct {
	// Mode must be empty or "merge".
	Mode             string
	ConflictStrategy models.ConflictStrategy
	IDHandling       models.IDHandling

	// DryRun computes the report without writing.
	DryRun bool

	// AllowSuspicious accepts a package that fails structural validation.
	AllowSuspicious bool
}

func (o *MergeOptions) normalize() error {
	switch o.Mode {
	case "", models.ModeMerge:
		o.Mode = models.ModeMerge
	case models.ModeReplace:
		return ErrReplaceViaMerge
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidOptions, o.Mode)
	}
	if o.ConflictStrategy == "" {
		o.ConflictStrategy = models.ConflictMerge
	}
	if !o.ConflictStrategy.Valid() {
		return fmt.Errorf("%w: conflict strategy %q", ErrInvalidOptions, o.ConflictStrategy)
	}
	if o.IDHandling == "" {
		o.IDHandling = models.IDPreserve
	}
	if !o.IDHandling.Valid() {
		return fmt.Errorf("%w: id handling %q", ErrInvalidOptions, o.IDHandling)
	}
	return nil
}

// liveDoc is an indexed live record.
type liveDoc struct {
	key  string
	data models.Record
}

// RestoreFromExport merges pkg into the live collections. Record failures
// do not fail the call: the report lists them and report.Err() returns
// ErrReconciliationPartialFailure.
func (e *Engine) RestoreFromExport(ctx context.Context, pkg *models.ExportPackage, opts MergeOptions) (*models.MergeReport, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if err := validateForRestore(pkg, opts.AllowSuspicious); err != nil {
		return nil, err
	}

	if !opts.DryRun {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	start := time.Now()
	report := e.merge(ctx, pkg, opts)

	result := metrics.ResultSuccess
	if len(report.Failed) > 0 {
		result = metrics.ResultPartial
	}
	if !opts.DryRun {
		metrics.RecordRestore(models.ModeMerge, since(start), result)
	}

	logging.Component(ctx, logComponent).Info().
		Str("conflict_strategy", string(opts.ConflictStrategy)).
		Str("id_handling", string(opts.IDHandling)).
		Bool("dry_run", opts.DryRun).
		Int("added", report.Added.Total()).
		Int("updated", report.Updated.Total()).
		Int("skipped", report.Skipped.Total()).
		Int("no_change", report.NoChange.Total()).
		Int("failed", len(report.Failed)).
		Dur("duration", since(start)).
		Msg("Merge restore completed")

	if !opts.DryRun && report.Added.Total()+report.Updated.Total() > 0 {
		e.notifyChange(models.ModeMerge)
	}
	return report, nil
}

// merge runs the merge without locking or validation. Rollback uses it
// directly.
func (e *Engine) merge(ctx context.Context, pkg *models.ExportPackage, opts MergeOptions) *models.MergeReport {
	report := models.NewMergeReport()
	report.DryRun = opts.DryRun

	for _, col := range models.Collections {
		incoming := col.Records(pkg)
		if len(incoming) == 0 {
			continue
		}
		e.mergeCollection(ctx, col, incoming, opts, report)

		if !opts.DryRun {
			metrics.RecordReconciled(col.Key, "added", report.Added[col.Key])
			metrics.RecordReconciled(col.Key, "updated", report.Updated[col.Key])
			metrics.RecordReconciled(col.Key, "skipped", report.Skipped[col.Key])
			metrics.RecordReconciled(col.Key, "no_change", report.NoChange[col.Key])
		}
	}
	return report
}

func (e *Engine) mergeCollection(ctx context.Context, col models.Collection, incoming []models.Record, opts MergeOptions, report *models.MergeReport) {
	coll := e.store.Collection(col.StoreName)
	docs, err := coll.ReadAll(ctx)
	if err != nil {
		report.Failed = append(report.Failed, models.FailedRecord{
			Collection: col.Key,
			Error:      fmt.Sprintf("read %s: %v", col.StoreName, err),
		})
		logging.Component(ctx, logComponent).Error().Err(err).Str("collection", col.Key).Msg("Merge skipped collection after read failure")
		return
	}

	index := make(map[string]*liveDoc, len(docs))
	for _, d := range docs {
		if key, ok := models.IDKey(d.Data.ID()); ok {
			if _, dup := index[key]; !dup {
				index[key] = &liveDoc{key: d.Key, data: d.Data}
			}
		}
	}

	for _, rec := range incoming {
		if err := e.mergeRecord(ctx, coll, col, index, rec, opts, report); err != nil {
			report.Failed = append(report.Failed, models.FailedRecord{
				Collection: col.Key,
				ID:         failedID(rec),
				Error:      err.Error(),
			})
		}
	}
}

func (e *Engine) mergeRecord(ctx context.Context, coll docstore.Collection, col models.Collection, index map[string]*liveDoc, rec models.Record, opts MergeOptions, report *models.MergeReport) error {
	if err := col.Validate(rec); err != nil {
		return err
	}
	idKey, _ := models.IDKey(rec.ID())

	live, found := index[idKey]
	if !found {
		next := rec.Clone()
		if opts.IDHandling == models.IDGenerate {
			next["id"] = e.newID()
		}
		storeKey := ""
		if !opts.DryRun {
			var err error
			if storeKey, err = coll.Add(ctx, next); err != nil {
				return fmt.Errorf("add: %w", err)
			}
		}
		newKey, _ := models.IDKey(next.ID())
		index[newKey] = &liveDoc{key: storeKey, data: next}
		report.Added[col.Key]++
		return nil
	}

	if models.Equal(live.data, rec) {
		report.NoChange[col.Key]++
		return nil
	}

	var next models.Record
	switch opts.ConflictStrategy {
	case models.ConflictSkip:
		report.Skipped[col.Key]++
		return nil
	case models.ConflictOverwrite:
		next = rec.Clone()
	default:
		next = live.data.MergeOver(rec)
		if models.Equal(next, live.data) {
			report.NoChange[col.Key]++
			return nil
		}
	}

	if !opts.DryRun {
		if err := coll.Set(ctx, live.key, next); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}
	live.data = next
	report.Updated[col.Key]++
	return nil
}

// failedID returns the record's id for a failure entry. A record without
// one is reported with an empty id so per-collection sums still hold.
func failedID(rec models.Record) any {
	if id := rec.ID(); id != nil {
		return id
	}
	return ""
}
