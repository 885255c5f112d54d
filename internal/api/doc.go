// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Package api provides the HTTP surface of Menuvault.

Two families of endpoints share one chi router:

Remote trigger mirror (bare JSON bodies):

	POST /restore          - merge or replace the live data from a package
	POST /sync/backup      - queue a package pushed by a local sync client

Admin API under /api/v1 (APIResponse envelope):

	GET    /backups                 - list catalogued backups
	POST   /backups                 - export and upload a manual backup
	GET    /backups/stats           - catalog statistics
	GET    /backups/{id}            - one backup record
	DELETE /backups/{id}            - remove a record
	GET    /backups/{id}/payload    - resolve a backup to its package
	POST   /backups/{id}/restore    - restore a catalogued backup
	GET    /export                  - download the live data as a package
	POST   /import/preview          - summarize and dry-run a package
	GET    /outbox                  - pending offline uploads
	POST   /outbox/flush            - replay the outbox now
	DELETE /outbox[/{id}]           - drop queued uploads
	GET    /autosave                - autosave config and state
	POST   /autosave/trigger        - run an autosave now
	GET    /schedule                - scheduled export state

Unauthenticated: GET /health, GET /metrics and GET /blobs/* (signed URLs).

Every protected route runs auth.Middleware to attach an identity and then
authz.Middleware to require the admin permission, so a missing or wrong
secret answers 403 before any body is read.
*/
package api
