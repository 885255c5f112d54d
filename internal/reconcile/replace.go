// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

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

// ReplaceOptions controls ReplaceFromExport.
type ReplaceOptions struct {
	// AllowSuspicious accepts a package that fails structural validation.
	AllowSuspicious bool
}

// ReplaceFromExport makes every tracked collection equal to the package's.
//
// A pre-restore snapshot is recorded first; if that fails nothing is
// touched. Then each collection is deleted in chunks, and the package's
// records are written in chunks under new store keys. Incoming ids are kept
// as given. On any failure during those phases the snapshot is merged back
// and the returned error wraps models.ErrReplaceFailed; result.RolledBack
// tells whether the rollback completed.
func (e *Engine) ReplaceFromExport(ctx context.Context, pkg *models.ExportPackage, opts ReplaceOptions) (*models.ReplaceResult, error) {
	if err := validateForRestore(pkg, opts.AllowSuspicious); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	log := logging.Component(ctx, logComponent)

	preID, prePkg, err := e.PreRestoreBackup(ctx)
	if err != nil {
		metrics.RecordRestore(models.ModeReplace, since(start), metrics.ResultFailure)
		log.Error().Err(err).Msg("Replace aborted: pre-restore snapshot failed")
		return &models.ReplaceResult{
				Success:    false,
				RolledBack: false,
				Error:      err.Error(),
			},
			fmt.Errorf("%w: pre-restore snapshot: %w", models.ErrReplaceFailed, err)
	}

	// Past this point the collections are being emptied; cancellation must
	// not leave them that way.
	wctx := context.WithoutCancel(ctx)

	report := models.NewReplaceReport()
	if err := e.replaceAll(wctx, pkg, report); err != nil {
		log.Error().Err(err).Str("pre_snapshot_id", preID).Msg("Replace failed, rolling back")

		rollback := e.merge(wctx, prePkg, MergeOptions{
			Mode:             models.ModeMerge,
			ConflictStrategy: models.ConflictMerge,
			IDHandling:       models.IDPreserve,
			AllowSuspicious:  true,
		})
		rollbackErr := rollback.Err()
		metrics.RecordRollback(rollbackErr)
		metrics.RecordRestore(models.ModeReplace, since(start), metrics.ResultFailure)

		rolledBack := rollbackErr == nil
		if rolledBack {
			log.Warn().Str("pre_snapshot_id", preID).Msg("Rollback re-applied pre-restore snapshot")
		} else {
			log.Error().Err(rollbackErr).
				Str("pre_snapshot_id", preID).
				Int("failed", len(rollback.Failed)).
				Msg("Rollback incomplete")
		}

		return &models.ReplaceResult{
			Success:        false,
			PreSnapshotID:  preID,
			Report:         report,
			RolledBack:     rolledBack,
			Error:          err.Error(),
			RollbackReport: rollback,
		}, fmt.Errorf("%w: %w", models.ErrReplaceFailed, err)
	}

	metrics.RecordRestore(models.ModeReplace, since(start), metrics.ResultSuccess)
	log.Info().
		Str("pre_snapshot_id", preID).
		Int("deleted", report.Deleted.Total()).
		Int("added", report.Added.Total()).
		Dur("duration", since(start)).
		Msg("Replace restore completed")

	e.notifyChange(models.ModeReplace)
	return &models.ReplaceResult{
		Success:       true,
		PreSnapshotID: preID,
		Report:        report,
	}, nil
}

// replaceAll runs the delete phase over every collection, then the write
// phase.
func (e *Engine) replaceAll(ctx context.Context, pkg *models.ExportPackage, report *models.ReplaceReport) error {
	size := e.chunkSize()

	for _, col := range models.Collections {
		coll := e.store.Collection(col.StoreName)
		docs, err := coll.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", col.StoreName, err)
		}
		ops := make([]docstore.Op, len(docs))
		for i, d := range docs {
			ops[i] = docstore.Op{Kind: docstore.OpDelete, Key: d.Key}
		}
		for _, chunk := range docstore.Chunk(ops, size) {
			if err := coll.Commit(ctx, chunk); err != nil {
				return fmt.Errorf("delete %s: %w", col.StoreName, err)
			}
			report.Deleted[col.Key] += len(chunk)
		}
	}

	for _, col := range models.Collections {
		records := col.Records(pkg)
		if len(records) == 0 {
			continue
		}
		coll := e.store.Collection(col.StoreName)
		ops := make([]docstore.Op, len(records))
		for i, rec := range records {
			ops[i] = docstore.Op{Kind: docstore.OpSet, Data: rec.Clone()}
		}
		for _, chunk := range docstore.Chunk(ops, size) {
			if err := coll.Commit(ctx, chunk); err != nil {
				return fmt.Errorf("write %s: %w", col.StoreName, err)
			}
			report.Added[col.Key] += len(chunk)
		}
	}
	return nil
}
