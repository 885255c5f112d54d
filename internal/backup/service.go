// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/transport"
)

// Exporter produces a snapshot of the live data.
type Exporter interface {
	Export(ctx context.Context) (*models.ExportPackage, error)
}

// Uploader stores an export package.
type Uploader interface {
	SaveBackupFile(ctx context.Context, pkg *models.ExportPackage, onProgress func(int)) (*transport.UploadResult, error)
}

// RecordSaver persists backup records.
type RecordSaver interface {
	SaveBackupRecord(ctx context.Context, rec *models.BackupRecord) (string, error)
}

// Service creates backups.
type Service struct {
	exporter Exporter
	uploader Uploader
	catalog  RecordSaver

	callbackMu       sync.RWMutex
	onBackupComplete func(rec *models.BackupRecord)
}

// NewService creates a backup service.
func NewService(exporter Exporter, uploader Uploader, catalog RecordSaver) *Service {
	return &Service{exporter: exporter, uploader: uploader, catalog: catalog}
}

// SetOnBackupComplete sets a callback run after every recorded backup.
func (s *Service) SetOnBackupComplete(fn func(rec *models.BackupRecord)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onBackupComplete = fn
}

// CreateBackup exports the live data, uploads it and records it in the
// catalog. performedBy is the subject of the identity in ctx.
func (s *Service) CreateBackup(ctx context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error) {
	pkg, err := s.export(ctx, note)
	if err != nil {
		metrics.RecordBackup(string(trigger), err)
		return nil, err
	}

	res, err := s.uploader.SaveBackupFile(ctx, pkg, nil)
	if err != nil {
		metrics.RecordBackup(string(trigger), err)
		return nil, fmt.Errorf("upload backup: %w", err)
	}

	rec := &models.BackupRecord{
		Meta:        *pkg.Meta,
		PerformedBy: auth.SubjectFromContext(ctx),
		Trigger:     trigger,
		FileURL:     res.URL,
		StoragePath: res.Path,
		SizeBytes:   res.SizeBytes,
	}
	if res.Queued {
		rec.Payload = pkg
	}
	return s.record(ctx, rec)
}

// CreateInlineBackup exports the live data and records it with the package
// inline, without touching the upload chain.
func (s *Service) CreateInlineBackup(ctx context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error) {
	pkg, err := s.export(ctx, note)
	if err != nil {
		metrics.RecordBackup(string(trigger), err)
		return nil, err
	}

	var size int64
	if data, err := pkg.Marshal(); err == nil {
		size = int64(len(data))
	}
	return s.record(ctx, &models.BackupRecord{
		Meta:        *pkg.Meta,
		PerformedBy: auth.SubjectFromContext(ctx),
		Trigger:     trigger,
		Payload:     pkg,
		SizeBytes:   size,
	})
}

func (s *Service) export(ctx context.Context, note string) (*models.ExportPackage, error) {
	pkg, err := s.exporter.Export(ctx)
	if err != nil {
		return nil, err
	}
	pkg.Meta.Note = note
	return pkg, nil
}

func (s *Service) record(ctx context.Context, rec *models.BackupRecord) (*models.BackupRecord, error) {
	id, err := s.catalog.SaveBackupRecord(ctx, rec)
	metrics.RecordBackup(string(rec.Trigger), err)
	if err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}
	rec.ID = id

	logging.Ctx(ctx).Info().
		Str("backup_id", id).
		Str("trigger", string(rec.Trigger)).
		Str("performed_by", rec.PerformedBy).
		Str("storage_path", rec.StoragePath).
		Bool("inline", rec.HasPayload()).
		Msg("Backup recorded")

	s.callbackMu.RLock()
	fn := s.onBackupComplete
	s.callbackMu.RUnlock()
	if fn != nil {
		fn(rec)
	}
	return rec, nil
}
