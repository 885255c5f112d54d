// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
Package models defines the data structures shared by every Menuvault
component: the export package, its records, backup catalog entries and the
reports produced by a restore.

Key Components:

  - ExportPackage: the unit of backup and restore. It holds a Meta block and
    one slice of records per collection (items, categories, sections,
    profiles, roles).
  - Record: a schemaless document. Records are identified by their "id"
    field, which may be a string or a number.
  - Collections: the registry of collections in export order, with the
    per-collection record validator used by ValidatePackage.
  - BackupRecord: a catalog entry. A record carries its package inline
    (Payload), by URL (FileURL) or by blob storage path (StoragePath).
  - MergeReport, ReplaceResult: restore outcomes with per-collection counts.

Package Format:

A package is a JSON document. Collections that are absent decode to nil
slices, present-but-empty collections decode to empty slices:

	{
	  "meta": {"version": "1.0.0", "createdAt": 1700000000000, "checksum": "5f3a..."},
	  "items": [{"id": "i1", "name": "Burger", "price": 90, "categoryId": "c1"}],
	  "categories": [{"id": "c1", "name": "Mains"}],
	  "sections": []
	}

Numbers are decoded as json.Number so prices and numeric IDs survive a
round trip unchanged. Equal compares them by value, so 90 and 90.0 are the
same price.

Validation:

ValidatePackage rejects a document without meta or without any of items,
categories and sections. Problems with individual records (missing id, a
non-numeric price) are reported as warnings; the reconciliation engine
counts them as failed records instead of rejecting the whole package.

Errors:

The sentinel errors in errors.go classify failures across packages.
Callers wrap them with %w and test with errors.Is:

	if errors.Is(err, models.ErrPermissionDenied) {
	    // 403
	}
*/
package models
