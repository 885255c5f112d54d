// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/menuvault/internal/backup"
	"github.com/tomtom215/menuvault/internal/catalog"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/reconcile"
)

// RestoreEngine reconciles packages into the live data.
type RestoreEngine interface {
	PreRestoreBackup(ctx context.Context) (string, *models.ExportPackage, error)
	RestoreFromExport(ctx context.Context, pkg *models.ExportPackage, opts reconcile.MergeOptions) (*models.MergeReport, error)
	ReplaceFromExport(ctx context.Context, pkg *models.ExportPackage, opts reconcile.ReplaceOptions) (*models.ReplaceResult, error)
}

// BackupCatalog reads and deletes catalogued backups.
type BackupCatalog interface {
	ListBackups(ctx context.Context, opts catalog.ListOptions) ([]*models.BackupRecord, error)
	GetBackup(ctx context.Context, id string) (*models.BackupRecord, error)
	DeleteBackup(ctx context.Context, id string) error
	Stats(ctx context.Context) (*catalog.Stats, error)
}

// BackupCreator creates uploaded backups.
type BackupCreator interface {
	CreateBackup(ctx context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error)
}

// PayloadResolver resolves a catalogued backup to its package.
type PayloadResolver interface {
	GetBackupPayload(ctx context.Context, backupID string, onProgress func(int)) (*models.ExportPackage, error)
}

// Exporter snapshots the live data.
type Exporter interface {
	Export(ctx context.Context) (*models.ExportPackage, error)
}

// Outbox is the offline queue.
type Outbox interface {
	Add(ctx context.Context, kind string, payload any) (uint64, error)
	Items(ctx context.Context) ([]*outbox.Item, error)
	Remove(ctx context.Context, id uint64) error
	Clear(ctx context.Context) (int, error)
}

// OutboxFlusher replays the outbox on demand.
type OutboxFlusher interface {
	FlushNow(ctx context.Context) (outbox.ProcessResult, error)
}

// AutosaveController exposes the autosaver.
type AutosaveController interface {
	State() backup.AutosaveState
	Config() backup.AutosaveConfig
	Trigger(ctx context.Context) (*models.BackupRecord, error)
}

// ScheduleInfo exposes the backup scheduler.
type ScheduleInfo interface {
	Enabled() bool
	NextRun() time.Time
	LastRun() (time.Time, error)
}

// BlobServer serves stored blobs behind signed URLs.
type BlobServer interface {
	ServeBlob(w http.ResponseWriter, r *http.Request, p string)
}

// Dependencies are the collaborators of the HTTP handlers. Nil optional
// collaborators turn their endpoints into 503 responses.
type Dependencies struct {
	Engine   RestoreEngine
	Catalog  BackupCatalog
	Backups  BackupCreator
	Payloads PayloadResolver
	Exporter Exporter

	Outbox   Outbox
	Flusher  OutboxFlusher
	Autosave AutosaveController
	Schedule ScheduleInfo
	Blobs    BlobServer

	// Version is reported by /health.
	Version string
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates the handlers.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}
