// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
badger.go - BadgerDB Document Store

BadgerStore keeps every collection in one BadgerDB keyspace. Documents are
stored as JSON under keys of the form:

	doc/<collection>/<key>

ReadAll is a prefix scan inside a single View transaction, so it observes a
consistent snapshot. Commit applies all operations inside one Update
transaction and is therefore atomic, but Badger also caps transaction size;
both the configured MaxBatchSize and badger.ErrTxnTooBig surface as
ErrBatchTooLarge.
*/

//nolint:staticcheck // File documentation, not package doc
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
)

const keyPrefix = "doc/"

// Config configures a BadgerStore.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory (tests and ephemeral deployments).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// MaxBatchSize caps the number of operations per Commit.
	MaxBatchSize int
}

// BadgerStore implements Store on top of BadgerDB.
type BadgerStore struct {
	db       *badger.DB
	maxBatch int

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a BadgerStore.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("document store path is required")
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

	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Int("max_batch", maxBatch).
		Msg("Document store opened")

	return &BadgerStore{db: db, maxBatch: maxBatch}, nil
}

// Collection implements Store.
func (s *BadgerStore) Collection(name string) Collection {
	return &badgerCollection{store: s, name: name, prefix: keyPrefix + name + "/"}
}

// MaxBatchSize implements Store.
func (s *BadgerStore) MaxBatchSize() int {
	return s.maxBatch
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// gcDiscardRatio is the fraction of a value log file that must be stale
// before it is rewritten.
const gcDiscardRatio = 0.5

// RunGC reclaims value log space until Badger finds nothing to rewrite.
// In-memory stores have no value log and return nil.
func (s *BadgerStore) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

type badgerCollection struct {
	store  *BadgerStore
	name   string
	prefix string
}

func (c *badgerCollection) Name() string {
	return c.name
}

func (c *badgerCollection) key(k string) []byte {
	return []byte(c.prefix + k)
}

func (c *badgerCollection) ReadAll(ctx context.Context) ([]Document, error) {
	if err := c.precheck(ctx); err != nil {
		return nil, err
	}

	docs := make([]Document, 0)
	err := c.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(c.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(c.prefix):])

			var rec models.Record
			err := item.Value(func(val []byte) error {
				var derr error
				rec, derr = models.DecodeRecord(val)
				return derr
			})
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", c.name, key, err)
			}
			docs = append(docs, Document{Key: key, Data: rec})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", c.name, err)
	}
	return docs, nil
}

func (c *badgerCollection) Get(ctx context.Context, key string) (*Document, error) {
	if err := c.precheck(ctx); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	var rec models.Record
	err := c.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			rec, derr = models.DecodeRecord(val)
			return derr
		})
	})
	if err != nil {
		return nil, err
	}
	return &Document{Key: key, Data: rec}, nil
}

func (c *badgerCollection) Add(ctx context.Context, data models.Record) (string, error) {
	key := uuid.New().String()
	if err := c.Set(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

func (c *badgerCollection) Set(ctx context.Context, key string, data models.Record) error {
	if key == "" {
		return ErrEmptyKey
	}
	return c.Commit(ctx, []Op{{Kind: OpSet, Key: key, Data: data}})
}

func (c *badgerCollection) Update(ctx context.Context, key string, patch models.Record) error {
	if err := c.precheck(ctx); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	return c.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var existing models.Record
		if err := item.Value(func(val []byte) error {
			var derr error
			existing, derr = models.DecodeRecord(val)
			return derr
		}); err != nil {
			return fmt.Errorf("decode %s/%s: %w", c.name, key, err)
		}

		data, err := json.Marshal(existing.MergeOver(patch))
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		return txn.Set(c.key(key), data)
	})
}

func (c *badgerCollection) Delete(ctx context.Context, key string) error {
	return c.Commit(ctx, []Op{{Kind: OpDelete, Key: key}})
}

func (c *badgerCollection) Commit(ctx context.Context, ops []Op) error {
	if err := c.precheck(ctx); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > c.store.maxBatch {
		return fmt.Errorf("%w: %d ops, limit %d", ErrBatchTooLarge, len(ops), c.store.maxBatch)
	}

	err := c.store.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			switch op.Kind {
			case OpSet:
				key := op.Key
				if key == "" {
					key = uuid.New().String()
				}
				data, err := json.Marshal(op.Data)
				if err != nil {
					return fmt.Errorf("marshal document: %w", err)
				}
				if err := txn.Set(c.key(key), data); err != nil {
					return err
				}
			case OpDelete:
				if op.Key == "" {
					return ErrEmptyKey
				}
				if err := txn.Delete(c.key(op.Key)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown op kind %d", op.Kind)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %v", ErrBatchTooLarge, err)
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", c.name, err)
	}
	return nil
}

func (c *badgerCollection) precheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.checkOpen()
}
