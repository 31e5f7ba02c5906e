// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package cache provides the in-memory TTL cache used for trained models,
// scoring engines and model status.
//
// Two expiration policies are supported:
//
//   - Absolute: an entry expires a fixed TTL after it was stored.
//   - Sliding: every successful Get pushes the expiration TTL into the future.
//
// Expired entries are removed lazily on access and by a periodic sweep,
// so eviction never depends on a caller touching the key again.
package cache

import (
	"sync"
	"time"
)

// Policy selects how entry expiration is computed.
type Policy int

const (
	// Absolute expires entries TTL after Set.
	Absolute Policy = iota
	// Sliding expires entries TTL after the last Get or Set.
	Sliding
)

// Options configures a Cache.
type Options struct {
	// TTL is the default entry lifetime. Default: 5m.
	TTL time.Duration

	// Policy is Absolute or Sliding. Default: Absolute.
	Policy Policy

	// SweepInterval is how often the background sweep runs.
	// Zero disables the sweep; expired entries are then only removed on access.
	SweepInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entry[V any] struct {
	value     V
	ttl       time.Duration
	expiresAt time.Time
}

// Stats tracks cache performance.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is a thread-safe map with per-entry expiration.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	opts    Options
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache. When opts.SweepInterval > 0 a background goroutine
// sweeps expired entries until Close is called.
//
//	engines := cache.New[*Engine](cache.Options{TTL: 24 * time.Hour, Policy: cache.Sliding})
func New[V any](opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		opts:    opts,
		stop:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	}
	return c
}

// Get returns the value for key if present and not expired.
// With the Sliding policy a hit renews the entry.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	now := c.opts.Now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		return zero, false
	}

	if c.opts.Policy == Sliding {
		e.expiresAt = now.Add(e.ttl)
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

// SetWithTTL stores value under key with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, ttl: ttl, expiresAt: c.opts.Now().Add(ttl)}
}

// GetOrCreate returns the cached value for key, or calls create and stores
// its result. create runs under the cache lock, so two callers never build
// the same key twice; it must be cheap and must not call back into the cache.
func (c *Cache[V]) GetOrCreate(key string, create func() V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	if e, ok := c.entries[key]; ok {
		if now.Before(e.expiresAt) {
			if c.opts.Policy == Sliding {
				e.expiresAt = now.Add(e.ttl)
			}
			c.stats.Hits++
			return e.value, true
		}
		delete(c.entries, key)
		c.stats.Evictions++
	}

	c.stats.Misses++
	v := create()
	c.entries[key] = &entry[V]{value: v, ttl: c.opts.TTL, expiresAt: now.Add(c.opts.TTL)}
	return v, false
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
}

// DeleteFunc removes every key for which match returns true.
func (c *Cache[V]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

// Close stops the background sweep. The cache stays usable.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
