// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package models

import "time"

// BackupTrigger indicates what initiated a backup
type BackupTrigger string

const (
	// TriggerManual is an operator-initiated backup
	TriggerManual BackupTrigger = "manual"
	// TriggerScheduled is a backup from the cron scheduler
	TriggerScheduled BackupTrigger = "scheduled"
	// TriggerPreRestore is the snapshot taken before a restore
	TriggerPreRestore BackupTrigger = "pre_restore"
	// TriggerAutosave is a debounced backup after data changes
	TriggerAutosave BackupTrigger = "autosave"
	// TriggerQueued is a backup accepted through the local sync endpoint
	TriggerQueued BackupTrigger = "queued"
)

// Valid reports whether t is a known trigger.
func (t BackupTrigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerPreRestore, TriggerAutosave, TriggerQueued:
		return true
	}
	return false
}

// BackupRecord is a catalog entry describing one export package.
// Payload, when present, takes precedence over FileURL and StoragePath.
type BackupRecord struct {
	ID          string         `json:"id"`
	Meta        Meta           `json:"meta"`
	PerformedBy string         `json:"performedBy"`
	Trigger     BackupTrigger  `json:"trigger,omitempty"`
	FileURL     string         `json:"fileUrl,omitempty"`
	StoragePath string         `json:"storagePath,omitempty"`
	Payload     *ExportPackage `json:"payload,omitempty"`
	SizeBytes   int64          `json:"sizeBytes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// HasPayload reports whether the record carries its package inline.
func (b *BackupRecord) HasPayload() bool {
	return b != nil && b.Payload != nil
}

// Summary returns a copy of the record without the inline payload, for
// listings.
func (b *BackupRecord) Summary() *BackupRecord {
	if b == nil {
		return nil
	}
	out := *b
	out.Payload = nil
	return &out
}
