// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package snapshot builds export packages: it reads every tracked collection
// from the document store, stamps the package meta and computes the package
// checksum.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/menuvault/internal/models"
)

// Checksum errors
var (
	ErrChecksumMissing  = errors.New("package has no checksum")
	ErrChecksumMismatch = errors.New("package checksum mismatch")
)

const djb2Seed uint32 = 5381

// Checksum returns the djb2 hash of data as lowercase hex without padding.
//
// The hash runs over UTF-16 code units so that packages produced by browser
// clients verify identically here. Arithmetic wraps at 32 bits.
func Checksum(data []byte) string {
	h := djb2Seed
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*33 + uint32(hi)
			h = h*33 + uint32(lo)
			continue
		}
		h = h*33 + uint32(r)
	}
	return strconv.FormatUint(uint64(h), 16)
}

// checksumMeta is the subset of meta covered by the checksum.
type checksumMeta struct {
	Version   string `json:"version"`
	CreatedAt int64  `json:"createdAt"`
}

// checksumBody fixes the key order of the hashed document. Map keys inside
// records are emitted sorted.
type checksumBody struct {
	Meta       checksumMeta    `json:"meta"`
	Items      []models.Record `json:"items"`
	Categories []models.Record `json:"categories"`
	Sections   []models.Record `json:"sections"`
	Profiles   []models.Record `json:"profiles"`
	Roles      []models.Record `json:"roles"`
}

// CanonicalBytes returns the serialization the checksum is computed over.
// The checksum, file name and note are excluded; absent collections hash as
// empty arrays.
func CanonicalBytes(pkg *models.ExportPackage) ([]byte, error) {
	if pkg == nil || pkg.Meta == nil {
		return nil, fmt.Errorf("%w: missing meta", models.ErrInvalidPackage)
	}
	body := checksumBody{
		Meta:       checksumMeta{Version: pkg.Meta.Version, CreatedAt: pkg.Meta.CreatedAt},
		Items:      nonNil(pkg.Items),
		Categories: nonNil(pkg.Categories),
		Sections:   nonNil(pkg.Sections),
		Profiles:   nonNil(pkg.Profiles),
		Roles:      nonNil(pkg.Roles),
	}
	return json.MarshalNoEscape(body)
}

// ComputeChecksum returns the checksum of pkg.
func ComputeChecksum(pkg *models.ExportPackage) (string, error) {
	data, err := CanonicalBytes(pkg)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}

// VerifyChecksum recomputes the checksum and compares it with meta.checksum.
func VerifyChecksum(pkg *models.ExportPackage) error {
	if pkg == nil || pkg.Meta == nil || pkg.Meta.Checksum == "" {
		return ErrChecksumMissing
	}
	sum, err := ComputeChecksum(pkg)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, pkg.Meta.Checksum) {
		return fmt.Errorf("%w: computed %s, recorded %s", ErrChecksumMismatch, sum, pkg.Meta.Checksum)
	}
	return nil
}

// NewMeta returns package meta stamped with version and now.
func NewMeta(version string, now time.Time) *models.Meta {
	if version == "" {
		version = models.DefaultSchemaVersion
	}
	return &models.Meta{Version: version, CreatedAt: now.UnixMilli()}
}

// FileName returns backup_<createdAt>_<checksum>.json. A random six
// character suffix stands in for a missing checksum.
func FileName(meta *models.Meta) string {
	var createdAt int64
	suffix := ""
	if meta != nil {
		createdAt = meta.CreatedAt
		suffix = meta.Checksum
	}
	if suffix == "" {
		suffix = strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	}
	return fmt.Sprintf("backup_%d_%s.json", createdAt, suffix)
}

// StoragePath returns the blob-store path for a package file name.
func StoragePath(fileName string) string {
	return "backups/" + fileName
}

func nonNil(records []models.Record) []models.Record {
	if records == nil {
		return []models.Record{}
	}
	return records
}
