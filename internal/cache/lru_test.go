// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a cache whose notion of time is advanced by the test.
func fakeClock[V any](c *LRU[V]) *time.Time {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string](3, time.Minute)

	c.Add("a", "A", 1)
	c.Add("b", "B", 1)
	c.Add("c", "C", 1)

	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected to find %q", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	if v, _ := c.Get("b"); v != "B" {
		t.Errorf("Get(b) = %q", v)
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[int](3, time.Minute)

	c.Add("a", 1, 0)
	c.Add("b", 2, 0)
	c.Add("c", 3, 0)

	// 'a' becomes most recently used, leaving 'b' as the eviction candidate.
	c.Get("a")
	c.Add("d", 4, 0)

	if _, ok := c.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %q to be present", k)
		}
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	now := fakeClock(c)

	c.Add("a", 1, 0)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' before expiry")
	}

	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expected 'a' to expire")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on access, Len() = %d", c.Len())
	}
}

func TestLRU_MaxBytes(t *testing.T) {
	c := NewLRU[[]byte](10, time.Minute)
	c.SetMaxBytes(10)

	c.Add("a", make([]byte, 4), 4)
	c.Add("b", make([]byte, 4), 4)
	c.Add("c", make([]byte, 4), 4)

	if _, ok := c.Get("a"); ok {
		t.Error("expected 'a' to be evicted by the byte bound")
	}
	if got := c.Bytes(); got != 8 {
		t.Errorf("Bytes() = %d, want 8", got)
	}

	// A value larger than the bound is not cached and drops a stale copy.
	c.Add("b", make([]byte, 11), 11)
	if _, ok := c.Get("b"); ok {
		t.Error("oversized value should not be cached")
	}
	if got := c.Bytes(); got != 4 {
		t.Errorf("Bytes() = %d, want 4", got)
	}
}

func TestLRU_UpdateReplacesSize(t *testing.T) {
	c := NewLRU[string](2, time.Minute)
	c.Add("a", "x", 5)
	c.Add("a", "y", 2)

	if got := c.Bytes(); got != 2 {
		t.Errorf("Bytes() = %d, want 2", got)
	}
	if v, _ := c.Get("a"); v != "y" {
		t.Errorf("Get(a) = %q, want y", v)
	}
}

func TestLRU_RemoveAndCleanup(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	now := fakeClock(c)

	c.Add("a", 1, 1)
	if !c.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true")
	}

	c.Add("b", 2, 1)
	*now = now.Add(30 * time.Second)
	c.Add("c", 3, 1)
	*now = now.Add(45 * time.Second)

	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected 'c' to survive cleanup")
	}
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Add("a", 1, 0)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d", hits, misses, size)
	}
}

func TestLRU_Defaults(t *testing.T) {
	c := NewLRU[int](0, 0)
	if c.capacity != defaultCapacity || c.ttl != defaultTTL {
		t.Errorf("defaults = %d, %v", c.capacity, c.ttl)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int](100, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa((g * 200) + i%50)
				c.Add(key, i, 1)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
