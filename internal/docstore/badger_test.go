// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/models"
)

func openTestStore(t *testing.T, maxBatch int) *BadgerStore {
	t.Helper()
	s, err := Open(Config{InMemory: true, MaxBatchSize: maxBatch})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerCollectionCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 10)
	items := s.Collection("menuItems")

	key, err := items.Add(ctx, models.Record{"id": 1, "price": 90})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if key == "" {
		t.Fatal("Add() returned empty key")
	}

	doc, err := items.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if price, ok := doc.Data["price"].(json.Number); !ok || price.String() != "90" {
		t.Errorf("price = %#v, want json.Number(90)", doc.Data["price"])
	}

	if err := items.Update(ctx, key, models.Record{"price": 100}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	doc, _ = items.Get(ctx, key)
	if !models.Equal(doc.Data, models.Record{"id": 1, "price": 100}) {
		t.Errorf("after Update = %v", doc.Data)
	}

	if err := items.Set(ctx, key, models.Record{"id": 1}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	doc, _ = items.Get(ctx, key)
	if _, leftover := doc.Data["price"]; leftover {
		t.Error("Set() should replace the whole document")
	}

	if err := items.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := items.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := items.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if err := items.Update(ctx, key, models.Record{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing error = %v, want ErrNotFound", err)
	}
}

func TestBadgerCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 10)

	if _, err := s.Collection("roles").Add(ctx, models.Record{"id": "admin"}); err != nil {
		t.Fatal(err)
	}
	// "role" is a prefix of "roles" without the separator
	if _, err := s.Collection("role").Add(ctx, models.Record{"id": "x"}); err != nil {
		t.Fatal(err)
	}

	docs, err := s.Collection("roles").ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("ReadAll(roles) returned %d docs, want 1", len(docs))
	}
}

func TestBadgerCommitBatchLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	c := s.Collection("sections")

	ops := make([]Op, 4)
	for i := range ops {
		ops[i] = Op{Kind: OpSet, Data: models.Record{"id": i}}
	}

	if err := c.Commit(ctx, ops); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("Commit(4 ops) error = %v, want ErrBatchTooLarge", err)
	}
	docs, _ := c.ReadAll(ctx)
	if len(docs) != 0 {
		t.Errorf("rejected batch wrote %d docs", len(docs))
	}

	for _, chunk := range Chunk(ops, s.MaxBatchSize()) {
		if err := c.Commit(ctx, chunk); err != nil {
			t.Fatalf("Commit(chunk) error = %v", err)
		}
	}
	docs, _ = c.ReadAll(ctx)
	if len(docs) != 4 {
		t.Errorf("ReadAll() = %d docs, want 4", len(docs))
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 3, []int{}},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
		{2, 0, []int{2}},
	}
	for _, tt := range tests {
		chunks := Chunk(make([]Op, tt.n), tt.size)
		if len(chunks) != len(tt.want) {
			t.Errorf("Chunk(%d, %d) = %d chunks, want %d", tt.n, tt.size, len(chunks), len(tt.want))
			continue
		}
		for i, c := range chunks {
			if len(c) != tt.want[i] {
				t.Errorf("Chunk(%d, %d)[%d] len = %d, want %d", tt.n, tt.size, i, len(c), tt.want[i])
			}
		}
	}
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs")

	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Collection("categories").Set(ctx, "k1", models.Record{"id": "c1", "order": 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	doc, err := s2.Collection("categories").Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if !models.Equal(doc.Data, models.Record{"id": "c1", "order": 2}) {
		t.Errorf("doc = %v", doc.Data)
	}
}

func TestBadgerStoreClosed(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if _, err := s.Collection("x").ReadAll(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ReadAll after Close error = %v, want ErrStoreClosed", err)
	}
}
