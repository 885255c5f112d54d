// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// BackupsCollection is the store collection that holds backup records.
const BackupsCollection = "backups"

// Collection describes one tracked collection of the dataset.
type Collection struct {
	// Key is the field name inside an ExportPackage.
	Key string

	// StoreName is the collection name in the document store.
	StoreName string

	// Singular is used in log lines and error messages.
	Singular string

	// Validate checks a single record before it is written.
	Validate func(Record) error

	field func(*ExportPackage) *[]Record
}

// Records returns the package's records for this collection.
func (c Collection) Records(p *ExportPackage) []Record {
	if p == nil {
		return nil
	}
	return *c.field(p)
}

// SetRecords replaces the package's records for this collection.
func (c Collection) SetRecords(p *ExportPackage, records []Record) {
	*c.field(p) = records
}

// Present reports whether the collection appeared in the package at all.
func (c Collection) Present(p *ExportPackage) bool {
	return p != nil && *c.field(p) != nil
}

// Collections is the registry consulted by every component that walks the
// dataset. Order matters: exports, merges and replaces visit collections in
// this order.
var Collections = []Collection{
	{
		Key:       "items",
		StoreName: "menuItems",
		Singular:  "item",
		Validate:  validateItem,
		field:     func(p *ExportPackage) *[]Record { return &p.Items },
	},
	{
		Key:       "categories",
		StoreName: "categories",
		Singular:  "category",
		Validate:  validateIdentified,
		field:     func(p *ExportPackage) *[]Record { return &p.Categories },
	},
	{
		Key:       "sections",
		StoreName: "sections",
		Singular:  "section",
		Validate:  validateIdentified,
		field:     func(p *ExportPackage) *[]Record { return &p.Sections },
	},
	{
		Key:       "profiles",
		StoreName: "profiles",
		Singular:  "profile",
		Validate:  validateIdentified,
		field:     func(p *ExportPackage) *[]Record { return &p.Profiles },
	},
	{
		Key:       "roles",
		StoreName: "roles",
		Singular:  "role",
		Validate:  validateIdentified,
		field:     func(p *ExportPackage) *[]Record { return &p.Roles },
	},
}

// CollectionByKey looks up a collection by its package key.
func CollectionByKey(key string) (Collection, bool) {
	for _, c := range Collections {
		if c.Key == key {
			return c, true
		}
	}
	return Collection{}, false
}

// Record validation errors
var (
	ErrMissingID    = errors.New("record has no id")
	ErrInvalidID    = errors.New("record id must be a non-empty string or a number")
	ErrInvalidField = errors.New("record field has an invalid type")
)

func validateIdentified(r Record) error {
	id, ok := r["id"]
	if !ok || id == nil {
		return ErrMissingID
	}
	if _, ok := IDKey(id); !ok {
		return ErrInvalidID
	}
	return nil
}

func validateItem(r Record) error {
	if err := validateIdentified(r); err != nil {
		return err
	}
	if price, ok := r["price"]; ok && price != nil {
		if _, isNum := numberString(price); !isNum {
			return fmt.Errorf("%w: price must be numeric", ErrInvalidField)
		}
	}
	return nil
}

// FormatID renders a domain id for logs and failure reports.
func FormatID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		if s, ok := numberString(v); ok {
			return s
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
