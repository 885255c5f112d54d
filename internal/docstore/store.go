// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package docstore provides the document-store collaborator used by the
// exporter, the reconciliation engine and the backup catalog.
//
// A Store is a set of named collections of schemaless documents. Each
// document has a store-assigned key that is distinct from the domain id
// carried inside the document. The store only guarantees atomicity inside a
// single Commit, and a Commit holds at most MaxBatchSize operations. There
// are no cross-collection transactions.
package docstore

import (
	"context"
	"errors"

	"github.com/tomtom215/menuvault/internal/models"
)

// Store errors
var (
	// ErrNotFound indicates the requested document key does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrBatchTooLarge indicates a Commit exceeded the store's batch limit.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("document store closed")

	// ErrEmptyKey indicates an operation was given an empty document key.
	ErrEmptyKey = errors.New("document key is empty")
)

// DefaultMaxBatchSize is the per-commit operation ceiling when none is
// configured.
const DefaultMaxBatchSize = 500

// Document is a stored record together with its store key.
type Document struct {
	Key  string
	Data models.Record
}

// OpKind identifies a batched write operation.
type OpKind int

const (
	// OpSet writes Data under Key, replacing any existing document.
	// An empty Key gets a generated one.
	OpSet OpKind = iota
	// OpDelete removes the document under Key. Missing keys are ignored.
	OpDelete
)

// Op is a single batched write.
type Op struct {
	Kind OpKind
	Key  string
	Data models.Record
}

// Collection is a named set of documents.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// ReadAll returns every document in the collection in a single read.
	ReadAll(ctx context.Context) ([]Document, error)

	// Get returns the document stored under key.
	Get(ctx context.Context, key string) (*Document, error)

	// Add stores data under a newly generated key and returns the key.
	Add(ctx context.Context, data models.Record) (string, error)

	// Set stores data under key, replacing the previous document entirely.
	Set(ctx context.Context, key string, data models.Record) error

	// Update shallow-merges patch into the document stored under key.
	Update(ctx context.Context, key string, patch models.Record) error

	// Delete removes the document stored under key.
	Delete(ctx context.Context, key string) error

	// Commit applies ops atomically. It fails with ErrBatchTooLarge when
	// len(ops) exceeds the store's MaxBatchSize.
	Commit(ctx context.Context, ops []Op) error
}

// Store is a set of collections.
type Store interface {
	// Collection returns a handle to the named collection.
	Collection(name string) Collection

	// MaxBatchSize returns the maximum number of operations per Commit.
	MaxBatchSize() int
}

// Chunk splits ops into consecutive slices of at most size elements.
func Chunk(ops []Op, size int) [][]Op {
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	chunks := make([][]Op, 0, (len(ops)+size-1)/size)
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[start:end])
	}
	return chunks
}
