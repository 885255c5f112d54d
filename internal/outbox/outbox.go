// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package outbox is a durable FIFO queue for operations that could not reach
// their destination, with handler-driven replay.
//
// Delivery is at-least-once: an item is removed only after its handler
// reports success, so a crash between a successful side effect and removal
// replays the item. Handlers must therefore be idempotent.
//
//	id, _ := ob.Add(ctx, "backupFile", payload)
//	res, _ := ob.Process(ctx, map[string]outbox.Handler{
//		"backupFile": transport.NewBackupFileHandler(blob),
//	})
package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
)

// Outbox errors
var (
	ErrClosed    = errors.New("outbox closed")
	ErrEmptyKind = errors.New("outbox item kind is empty")
	ErrNotFound  = errors.New("outbox item not found")
)

const (
	keyPrefix     = "outbox:"
	sequenceKey   = "outbox_seq"
	sequenceLease = 100
	maxErrorLen   = 500

	// logComponent selects the logging.components override.
	logComponent = "outbox"
)

// Item is a queued operation.
type Item struct {
	ID            uint64          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"lastAttemptAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
}

// Handler replays one item. Returning true removes the item; false or an
// error keeps it for a later attempt.
type Handler func(ctx context.Context, payload json.RawMessage) (bool, error)

// Config configures a BadgerOutbox.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerOutbox implements the outbox on BadgerDB. Keys are the prefix
// followed by the big-endian item id, so key order is insertion order.
type BadgerOutbox struct {
	db  *badger.DB
	seq *badger.Sequence

	mu     sync.RWMutex
	closed bool

	// processing holds ids currently being handled by some Process call.
	processing sync.Map
}

// Open opens (or creates) an outbox.
func Open(cfg Config) (*BadgerOutbox, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("outbox path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLease)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox sequence: %w", err)
	}

	ob := &BadgerOutbox{db: db, seq: seq}
	if n, err := ob.Count(context.Background()); err == nil {
		metrics.OutboxDepth.Set(float64(n))
	}

	logging.WithComponent(logComponent).Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Outbox opened")
	return ob, nil
}

// Close releases the sequence and closes the database.
func (o *BadgerOutbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	var errs []error
	if err := o.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := o.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunGC reclaims value log space left behind by removed items.
func (o *BadgerOutbox) RunGC() error {
	if err := o.precheck(context.Background()); err != nil {
		return err
	}
	for {
		err := o.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

func (o *BadgerOutbox) precheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	return nil
}

func itemKey(id uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], id)
	return key
}

// Add enqueues payload under kind and returns the item id.
func (o *BadgerOutbox) Add(ctx context.Context, kind string, payload any) (uint64, error) {
	if err := o.precheck(ctx); err != nil {
		return 0, err
	}
	if kind == "" {
		return 0, ErrEmptyKind
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.MarshalNoEscape(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload: %w", err)
		}
	}

	n, err := o.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next outbox id: %w", err)
	}
	item := &Item{
		ID:        n + 1,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal item: %w", err)
	}
	if err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.ID), data)
	}); err != nil {
		return 0, fmt.Errorf("write outbox item: %w", err)
	}

	metrics.OutboxEnqueued.WithLabelValues(kind).Inc()
	metrics.OutboxDepth.Inc()
	logging.Component(ctx, logComponent).Info().
		Uint64("outbox_id", item.ID).
		Str("kind", kind).
		Int("payload_bytes", len(raw)).
		Msg("Queued operation in outbox")
	return item.ID, nil
}

// Items returns every queued item in FIFO order.
func (o *BadgerOutbox) Items(ctx context.Context) ([]*Item, error) {
	if err := o.precheck(ctx); err != nil {
		return nil, err
	}

	items := make([]*Item, 0)
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(keyPrefix)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				logging.Component(ctx, logComponent).Warn().Err(err).Msg("Skipping corrupt outbox item")
				continue
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	return items, nil
}

// Get returns the item with the given id.
func (o *BadgerOutbox) Get(ctx context.Context, id uint64) (*Item, error) {
	if err := o.precheck(ctx); err != nil {
		return nil, err
	}
	var item Item
	err := o.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(itemKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Count returns the number of queued items.
func (o *BadgerOutbox) Count(ctx context.Context) (int, error) {
	if err := o.precheck(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(keyPrefix)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Remove deletes the item with the given id. Removing a missing item is
// not an error.
func (o *BadgerOutbox) Remove(ctx context.Context, id uint64) error {
	if err := o.precheck(ctx); err != nil {
		return err
	}
	existed := false
	err := o.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(itemKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(itemKey(id))
	})
	if err != nil {
		return fmt.Errorf("remove outbox item %d: %w", id, err)
	}
	if existed {
		metrics.OutboxDepth.Dec()
	}
	return nil
}

// Clear removes every item and returns how many were removed.
func (o *BadgerOutbox) Clear(ctx context.Context) (int, error) {
	items, err := o.Items(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range items {
		if err := o.Remove(ctx, item.ID); err != nil {
			return removed, err
		}
		removed++
	}
	logging.Component(ctx, logComponent).Info().Int("removed", removed).Msg("Outbox cleared")
	return removed, nil
}

// recordAttempt bumps the attempt counter of an item still present.
func (o *BadgerOutbox) recordAttempt(ctx context.Context, id uint64, cause string) error {
	if err := o.precheck(ctx); err != nil {
		return err
	}
	if len(cause) > maxErrorLen {
		cause = cause[:maxErrorLen]
	}
	return o.db.Update(func(txn *badger.Txn) error {
		it, err := txn.Get(itemKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var item Item
		if err := it.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		}); err != nil {
			return err
		}
		item.Attempts++
		item.LastAttemptAt = time.Now().UTC()
		item.LastError = cause

		data, err := json.Marshal(&item)
		if err != nil {
			return err
		}
		return txn.Set(itemKey(id), data)
	})
}

// tryClaim marks id as being processed; it returns false when another
// Process call already holds it.
func (o *BadgerOutbox) tryClaim(id uint64) bool {
	_, already := o.processing.LoadOrStore(id, time.Now())
	return !already
}

func (o *BadgerOutbox) release(id uint64) {
	o.processing.Delete(id)
}
