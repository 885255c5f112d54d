// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package models

import (
	"fmt"
	"strings"
)

// ValidationResult contains the structural checks run on a package before
// it is accepted for merge or replace.
//
// Errors make the package suspicious: callers must confirm before using it.
// Warnings describe individual records the engine will report as failed.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the package passed structural validation.
func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// Err returns ErrInvalidPackage carrying the validation errors, or nil.
func (v *ValidationResult) Err() error {
	if v.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidPackage, strings.Join(v.Errors, "; "))
}

// primaryCollections must contain at least one present collection for a
// package to be considered a menu backup.
var primaryCollections = []string{"items", "categories", "sections"}

// ValidatePackage checks a package's structure and its records.
func ValidatePackage(p *ExportPackage) *ValidationResult {
	res := &ValidationResult{Errors: []string{}, Warnings: []string{}}
	if p == nil {
		res.Errors = append(res.Errors, "package is empty")
		return res
	}

	if p.Meta == nil {
		res.Errors = append(res.Errors, "missing meta")
	} else if p.Meta.Version == "" {
		res.Warnings = append(res.Warnings, "meta.version is empty")
	}

	present := false
	for _, key := range primaryCollections {
		if c, ok := CollectionByKey(key); ok && c.Present(p) {
			present = true
			break
		}
	}
	if !present {
		res.Errors = append(res.Errors, "none of items, categories or sections present")
	}

	for _, c := range Collections {
		seen := make(map[string]int)
		for i, rec := range c.Records(p) {
			if err := c.Validate(rec); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s[%d]: %v", c.Key, i, err))
				continue
			}
			key, _ := IDKey(rec.ID())
			if first, dup := seen[key]; dup {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("%s[%d]: duplicate id %s (first at %d)", c.Key, i, FormatID(rec.ID()), first))
				continue
			}
			seen[key] = i
		}
	}

	return res
}
