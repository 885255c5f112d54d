// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package models

import "errors"

// Error taxonomy shared by every component. Low-level store and transport
// errors are wrapped into one of these at component boundaries; use
// errors.Is to classify.
var (
	// ErrExportFailed indicates a collection read failed during a snapshot.
	// No package is produced.
	ErrExportFailed = errors.New("export failed")

	// ErrTransportFailed indicates an upload or download could not complete.
	ErrTransportFailed = errors.New("transport failed")

	// ErrReconciliationPartialFailure indicates a merge completed with one or
	// more failed records.
	ErrReconciliationPartialFailure = errors.New("reconciliation completed with failures")

	// ErrReplaceFailed indicates a replace aborted. The accompanying result
	// tells whether rollback succeeded.
	ErrReplaceFailed = errors.New("replace failed")

	// ErrPermissionDenied indicates an admin-gated operation was invoked
	// without an admin identity.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidPackage indicates a package failed structural validation.
	ErrInvalidPackage = errors.New("invalid package")
)
