// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package models defines the data structures shared by the exporter, the
// reconciliation engine, the transport layer and the backup catalog.
//
// The central type is ExportPackage: a portable, versioned bundle holding
// every tracked collection of the menu dataset. Records are schemaless
// (map[string]any) and identified by their domain "id" field rather than by
// the key the document store assigns them.
package models

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// DefaultSchemaVersion is the package format version stamped into exports.
const DefaultSchemaVersion = "1.0.0"

// PreRestoreNote tags the snapshot taken before a destructive restore.
const PreRestoreNote = "pre-restore-snapshot"

// Record is a single domain document. Numbers decoded through this package
// are json.Number so they re-serialize verbatim.
type Record map[string]any

// ID returns the record's domain id, or nil when absent.
func (r Record) ID() any {
	if r == nil {
		return nil
	}
	return r["id"]
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// MergeOver returns a shallow merge of r with patch applied on top.
// Fields present in patch win; fields only in r are kept.
func (r Record) MergeOver(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Meta describes an export package.
type Meta struct {
	Version   string `json:"version"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
	Checksum  string `json:"checksum,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ExportPackage is the unit of backup and restore.
//
// A nil slice means the collection was absent from the source document,
// an empty slice means it was present but empty. Validation relies on the
// difference.
type ExportPackage struct {
	Meta       *Meta    `json:"meta"`
	Items      []Record `json:"items"`
	Categories []Record `json:"categories"`
	Sections   []Record `json:"sections"`
	Profiles   []Record `json:"profiles"`
	Roles      []Record `json:"roles"`
}

// RecordCount returns the total number of records across all collections.
func (p *ExportPackage) RecordCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, c := range Collections {
		n += len(c.Records(p))
	}
	return n
}

// Counts returns the per-collection record counts of the package.
func (p *ExportPackage) Counts() Counts {
	counts := NewCounts()
	if p == nil {
		return counts
	}
	for _, c := range Collections {
		counts[c.Key] = len(c.Records(p))
	}
	return counts
}

// ParsePackage decodes a package from JSON, preserving number literals.
func ParsePackage(r io.Reader) (*ExportPackage, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var pkg ExportPackage
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	return &pkg, nil
}

// ParsePackageBytes is ParsePackage over a byte slice.
func ParsePackageBytes(data []byte) (*ExportPackage, error) {
	return ParsePackage(bytes.NewReader(data))
}

// Marshal serializes the package in its interchange format.
func (p *ExportPackage) Marshal() ([]byte, error) {
	data, err := json.MarshalNoEscape(p)
	if err != nil {
		return nil, fmt.Errorf("marshal package: %w", err)
	}
	return data, nil
}

// DecodeRecord decodes a single record from JSON, preserving number literals.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
