// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Package services adapts Menuvault components that do not already speak
suture's Serve(ctx) error contract.

HTTPServerService translates http.Server's ListenAndServe/Shutdown pair
into Serve. StoreGCService runs BadgerDB value log collection for the
document store and the outbox on a ticker.

The backup scheduler, the autosaver and the outbox flusher implement
suture.Service themselves and are added to the tree directly.
*/
package services
