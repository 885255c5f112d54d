// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package services

import (
	"context"
	"time"

	"github.com/tomtom215/menuvault/internal/logging"
)

// DefaultGCInterval is how often the stores' value logs are collected.
const DefaultGCInterval = 10 * time.Minute

// GarbageCollector is satisfied by docstore.BadgerStore and
// outbox.BadgerOutbox.
type GarbageCollector interface {
	RunGC() error
}

// StoreGCService periodically reclaims value log space in the BadgerDB
// stores. A failed collection is logged and retried on the next tick;
// it never stops the service.
type StoreGCService struct {
	stores   map[string]GarbageCollector
	interval time.Duration
}

// NewStoreGCService creates the service. stores is keyed by a name used
// in logs.
func NewStoreGCService(stores map[string]GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &StoreGCService{stores: stores, interval: interval}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *StoreGCService) collect() {
	for name, store := range s.stores {
		start := time.Now()
		if err := store.RunGC(); err != nil {
			logging.Warn().Err(err).Str("store", name).Msg("Value log GC failed")
			continue
		}
		logging.Debug().Str("store", name).Dur("took", time.Since(start)).Msg("Value log GC completed")
	}
}

// String implements fmt.Stringer.
func (s *StoreGCService) String() string {
	return "store-gc"
}
