// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package reconcile applies export packages to the live document store.
//
// Two modes exist and never mix:
//
//   - Merge (RestoreFromExport) upserts records by their domain id under a
//     conflict strategy. It never aborts on a single record; failures are
//     collected in the report.
//   - Replace (ReplaceFromExport) takes a pre-restore snapshot, deletes
//     every tracked collection, writes the package, and on any failure
//     re-applies the snapshot through a merge.
//
// The store only offers atomic commits of bounded size and no transactions
// across collections, so a replace is not atomic: between its delete and
// write phases the collections are empty. Once the delete phase has begun
// the operation runs to completion or rollback even if the caller's
// context is cancelled.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
)

// Engine errors
var (
	// ErrReplaceViaMerge indicates RestoreFromExport was asked to replace.
	ErrReplaceViaMerge = errors.New("replace mode is not handled by merge restore; use ReplaceFromExport")

	// ErrInvalidOptions indicates an unknown mode, conflict strategy or id
	// handling.
	ErrInvalidOptions = errors.New("invalid restore options")
)

// DefaultBatchSize is the per-commit ceiling used by replace, further
// capped by the store's own limit.
const DefaultBatchSize = 400

const logComponent = "reconcile"

// Exporter produces a snapshot of the live data.
type Exporter interface {
	Export(ctx context.Context) (*models.ExportPackage, error)
}

// RecordSaver persists backup records.
type RecordSaver interface {
	SaveBackupRecord(ctx context.Context, rec *models.BackupRecord) (string, error)
}

// Engine reconciles packages against the store. Write operations are
// serialized; dry runs are not.
type Engine struct {
	store     docstore.Store
	authz     authz.Authorizer
	exporter  Exporter
	catalog   RecordSaver
	batchSize int
	newID     func() string

	mu sync.Mutex

	hookMu   sync.RWMutex
	onChange func(mode string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the replace commit size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithIDGenerator replaces the generator used for idHandling "generate".
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine.
func NewEngine(store docstore.Store, authorizer authz.Authorizer, exporter Exporter, catalog RecordSaver, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		authz:     authorizer,
		exporter:  exporter,
		catalog:   catalog,
		batchSize: DefaultBatchSize,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetOnChange registers fn to run after every successful write operation.
func (e *Engine) SetOnChange(fn func(mode string)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onChange = fn
}

func (e *Engine) notifyChange(mode string) {
	e.hookMu.RLock()
	fn := e.onChange
	e.hookMu.RUnlock()
	if fn != nil {
		fn(mode)
	}
}

// chunkSize returns the commit size honoring both limits.
func (e *Engine) chunkSize() int {
	n := e.batchSize
	if limit := e.store.MaxBatchSize(); limit > 0 && limit < n {
		n = limit
	}
	return n
}

// PreRestoreBackup exports the live data and records it in the catalog
// with its payload inline. It requires an administrator.
func (e *Engine) PreRestoreBackup(ctx context.Context) (string, *models.ExportPackage, error) {
	if _, err := e.authz.RequireAdmin(ctx); err != nil {
		return "", nil, err
	}

	pkg, err := e.exporter.Export(ctx)
	if err != nil {
		metrics.RecordBackup(string(models.TriggerPreRestore), err)
		return "", nil, err
	}
	pkg.Meta.Note = models.PreRestoreNote

	var size int64
	if data, err := pkg.Marshal(); err == nil {
		size = int64(len(data))
	}

	id, err := e.catalog.SaveBackupRecord(ctx, &models.BackupRecord{
		Meta:        *pkg.Meta,
		PerformedBy: auth.SubjectFromContext(ctx),
		Trigger:     models.TriggerPreRestore,
		Payload:     pkg,
		SizeBytes:   size,
	})
	metrics.RecordBackup(string(models.TriggerPreRestore), err)
	if err != nil {
		return "", nil, fmt.Errorf("record pre-restore snapshot: %w", err)
	}

	logging.Component(ctx, logComponent).Info().
		Str("backup_id", id).
		Int("records", pkg.RecordCount()).
		Str("checksum", pkg.Meta.Checksum).
		Msg("Pre-restore snapshot saved")
	return id, pkg, nil
}

func validateForRestore(pkg *models.ExportPackage, allowSuspicious bool) error {
	if pkg == nil {
		return fmt.Errorf("%w: package is empty", models.ErrInvalidPackage)
	}
	if allowSuspicious {
		return nil
	}
	return models.ValidatePackage(pkg).Err()
}

func since(start time.Time) time.Duration {
	return time.Since(start)
}
