// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package snapshot

import (
	"errors"
	"time"

	"github.com/tomtom215/menuvault/internal/models"
)

// Checksum status values reported in a PackageSummary.
const (
	ChecksumValid    = "valid"
	ChecksumMismatch = "mismatch"
	ChecksumMissing  = "missing"
)

// PackageSummary describes a package without reconciling it.
type PackageSummary struct {
	Version        string                   `json:"version"`
	CreatedAt      time.Time                `json:"createdAt"`
	Checksum       string                   `json:"checksum,omitempty"`
	ChecksumStatus string                   `json:"checksumStatus"`
	Counts         models.Counts            `json:"counts"`
	Total          int                      `json:"total"`
	Validation     *models.ValidationResult `json:"validation"`
}

// Summarize counts a package's records, verifies its checksum and runs
// structural validation.
func Summarize(pkg *models.ExportPackage) *PackageSummary {
	s := &PackageSummary{
		Counts:     pkg.Counts(),
		Total:      pkg.RecordCount(),
		Validation: models.ValidatePackage(pkg),
	}
	if pkg != nil && pkg.Meta != nil {
		s.Version = pkg.Meta.Version
		s.CreatedAt = time.UnixMilli(pkg.Meta.CreatedAt).UTC()
		s.Checksum = pkg.Meta.Checksum
	}

	switch err := VerifyChecksum(pkg); {
	case err == nil:
		s.ChecksumStatus = ChecksumValid
	case errors.Is(err, ErrChecksumMissing):
		s.ChecksumStatus = ChecksumMissing
	default:
		s.ChecksumStatus = ChecksumMismatch
	}
	return s
}
