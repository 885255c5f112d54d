// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Command server runs Menuvault: the backup, restore and reconciliation
service for a restaurant's menu dataset.

# Startup

 1. Configuration: koanf defaults, then config.yaml, then environment
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Storage: BadgerDB document store, BadgerDB outbox, blob directory
 4. Access control: JWT and/or shared secret, Casbin admin policy
 5. Backup pipeline: exporter, upload chain (blob store, local sync,
    outbox), catalog, downloader, reconciliation engine
 6. Jobs: scheduled export, autosave, outbox flusher, value log GC
 7. HTTP: chi router with /restore, /sync/backup and /api/v1

# Upload chain

Backups go to the blob store behind a circuit breaker. When it fails, a
configured LOCAL_SYNC_URL is tried. The outbox always comes last, so an
admin backup is never lost while the blob store is down; the flusher
uploads queued packages once it recovers.

# Minimal run

	export BACKUP_SECRET=$(openssl rand -hex 24)
	export STORE_PATH=/var/lib/menuvault/menu
	./menuvault

	curl -X POST -H "X-Backup-Secret: $BACKUP_SECRET" \
	     --data-binary @menu-backup.json \
	     'http://localhost:8787/restore?mode=merge&conflictStrategy=merge'

# Signals

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains for
SHUTDOWN_TIMEOUT, autosave cancels a run in progress, and the stores are
closed last.
*/
package main
