// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import "errors"

// Request decoding errors
var (
	// ErrMissingPackage indicates the body carried no export package
	ErrMissingPackage = errors.New("request carries no export package")

	// ErrBodyTooLarge indicates the body exceeded the configured limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// Messages of the remote trigger mirror. Clients match on them.
const (
	msgForbidden      = "Forbidden"
	msgInvalidPayload = "Invalid payload"
)
