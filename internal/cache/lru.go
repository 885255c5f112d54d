// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package cache provides a bounded, expiring LRU cache.
//
// The transport downloader keeps recently fetched backup documents here so a
// payload preview followed by a restore of the same backup downloads once.
package cache

import (
	"sync"
	"time"
)

const (
	defaultCapacity = 16
	defaultTTL      = 10 * time.Minute
)

type entry[V any] struct {
	key       string
	value     V
	size      int64
	prev      *entry[V]
	next      *entry[V]
	expiresAt time.Time
}

// LRU is a thread-safe least recently used cache with TTL support.
// Capacity is counted in entries; MaxBytes additionally bounds the sum of
// the sizes passed to Add when non-zero.
//
// Lookups and evictions are O(1): a hashmap indexes a doubly linked list
// whose head is the most recently used entry.
type LRU[V any] struct {
	mu sync.Mutex

	capacity int
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time

	items map[string]*entry[V]
	bytes int64

	// head.next is the most recently used, tail.prev the least.
	head *entry[V]
	tail *entry[V]

	hits   int64
	misses int64
}

// NewLRU creates a cache holding at most capacity entries for ttl each.
// Non-positive values select 16 entries and 10 minutes.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*entry[V], capacity),
		head:     &entry[V]{},
		tail:     &entry[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// SetMaxBytes bounds the total size of cached values. Zero disables the
// bound.
func (c *LRU[V]) SetMaxBytes(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.maxBytes = n
	c.evictLocked()
}

// Get returns the value for key if present and not expired. A hit moves the
// entry to the front.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		if c.now().After(e.expiresAt) {
			c.removeEntry(e)
			c.misses++
			var zero V
			return zero, false
		}
		c.moveToFront(e)
		c.hits++
		return e.value, true
	}

	c.misses++
	var zero V
	return zero, false
}

// Add inserts or replaces key. size is the value's weight against MaxBytes;
// a value larger than MaxBytes on its own is not cached.
func (c *LRU[V]) Add(key string, value V, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 && size > c.maxBytes {
		if e, ok := c.items[key]; ok {
			c.removeEntry(e)
		}
		return
	}

	expiresAt := c.now().Add(c.ttl)
	if e, ok := c.items[key]; ok {
		c.bytes += size - e.size
		e.value = value
		e.size = size
		e.expiresAt = expiresAt
		c.moveToFront(e)
		c.evictLocked()
		return
	}

	e := &entry[V]{key: key, value: value, size: size, expiresAt: expiresAt}
	c.addToFront(e)
	c.items[key] = e
	c.bytes += size
	c.evictLocked()
}

// Remove deletes key and reports whether it was present.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
		return true
	}
	return false
}

// Len returns the number of entries, expired ones included until touched.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Bytes returns the summed size of the cached values.
func (c *LRU[V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *LRU[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			c.removeEntry(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Stats returns hit and miss counters and the current size.
func (c *LRU[V]) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// The methods below must be called with mu held.

func (c *LRU[V]) evictLocked() {
	for len(c.items) > c.capacity || (c.maxBytes > 0 && c.bytes > c.maxBytes) {
		oldest := c.tail.prev
		if oldest == c.head {
			return
		}
		c.removeEntry(oldest)
	}
}

func (c *LRU[V]) addToFront(e *entry[V]) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU[V]) moveToFront(e *entry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

func (c *LRU[V]) removeEntry(e *entry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
	c.bytes -= e.size
}
