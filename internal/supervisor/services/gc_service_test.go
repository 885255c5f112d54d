// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/outbox"
)

type countingGC struct {
	runs atomic.Int32
	err  error
}

func (c *countingGC) RunGC() error {
	c.runs.Add(1)
	return c.err
}

var (
	_ GarbageCollector = (*docstore.BadgerStore)(nil)
	_ GarbageCollector = (*outbox.BadgerOutbox)(nil)
)

func TestStoreGCService_RunsEveryStoreEachTick(t *testing.T) {
	ok := &countingGC{}
	failing := &countingGC{err: errors.New("disk busy")}
	svc := NewStoreGCService(map[string]GarbageCollector{"docs": ok, "outbox": failing}, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve() = %v", err)
	}

	if ok.runs.Load() < 2 {
		t.Errorf("docs GC runs = %d, want at least 2", ok.runs.Load())
	}
	if failing.runs.Load() < 2 {
		t.Errorf("a failing store should keep being collected, runs = %d", failing.runs.Load())
	}
}

func TestStoreGCService_InMemoryStores(t *testing.T) {
	store, err := docstore.Open(docstore.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.RunGC(); err != nil {
		t.Errorf("in-memory RunGC() = %v, want nil", err)
	}
	if NewStoreGCService(nil, 0).interval != DefaultGCInterval {
		t.Error("zero interval should use the default")
	}
}
