// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package backup creates catalogued backups of the live menu data.
//
// # Overview
//
// A backup is an export package that has been handed to the transport layer
// and recorded in the catalog. Three producers create them:
//
//	Service    - export, upload, record (manual and API-triggered backups)
//	Scheduler  - runs the service on a cron schedule
//	Autosaver  - debounced backup after the data changes
//
// # Architecture
//
//	┌──────────────┐     ┌─────────────┐     ┌──────────────┐
//	│  Scheduler   │────▶│   Service   │────▶│  Transport   │
//	└──────────────┘     └─────────────┘     └──────────────┘
//	┌──────────────┐            │
//	│  Autosaver   │────────────┤
//	└──────────────┘            ▼
//	                     ┌─────────────┐
//	                     │   Catalog   │
//	                     └─────────────┘
//
// # Queued uploads
//
// When the upload chain only queues the package (local sync or outbox), the
// catalog record carries the package inline so the backup can be restored
// before the queued upload lands.
//
// # Usage
//
//	svc := backup.NewService(exporter, uploader, catalog)
//	rec, err := svc.CreateBackup(ctx, models.TriggerManual, "before menu change")
//
//	sched, err := backup.NewScheduler(svc, backup.ScheduleConfig{Enabled: true, Cron: "0 3 * * *"})
//	// sched implements suture.Service
//
//	auto := backup.NewAutosaver(backup.AutosaveConfig{Enabled: true, Upload: true}, svc)
//	engine.SetOnChange(func(string) { auto.Notify() })
//	defer auto.Dispose()
package backup
