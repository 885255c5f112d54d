// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Package supervisor runs Menuvault's long-lived services under a suture v4
supervisor tree.

# Layout

	menuvault (root)
	├── jobs-layer
	│   ├── backup-scheduler   cron-driven exports (when enabled)
	│   ├── autosave           debounced backups after data changes
	│   ├── outbox-flusher     replays queued uploads
	│   └── store-gc           BadgerDB value log collection
	└── api-layer
	    └── http-server

Crashed services restart with suture's backoff. Failures are counted per
layer, so a job stuck in a restart loop does not stop the API.

# Logging

Supervisor events (service start, failure, backoff, restart) go through
sutureslog into a slog.Logger. main passes logging.NewSlogLogger() so the
events end up in the same zerolog stream as the rest of the process.

# Usage

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddJob(scheduler)
	tree.AddJob(flusher)
	tree.AddAPIService(services.NewHTTPServerService(srv, addr, cfg.Server.ShutdownTimeout))
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    ...
	}
*/
package supervisor
