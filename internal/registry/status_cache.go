// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package registry

import (
	"context"
	"time"

	"github.com/tomtom215/sarec/internal/cache"
)

// DefaultStatusTTL is how long a terminal status is cached.
const DefaultStatusTTL = 10 * time.Minute

// StatusEntry is a cached status lookup.
type StatusEntry struct {
	Status  Status
	Message string
}

// StatusCache answers status lookups for callers polling a model. Only
// terminal statuses are cached; transient ones are read through every time.
type StatusCache struct {
	store   Store
	entries *cache.Cache[StatusEntry]
}

// NewStatusCache creates a status cache over store. ttl <= 0 uses DefaultStatusTTL.
func NewStatusCache(store Store, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{
		store: store,
		entries: cache.New[StatusEntry](cache.Options{
			TTL:           ttl,
			Policy:        cache.Absolute,
			SweepInterval: ttl,
		}),
	}
}

// Status returns the status of model id.
func (c *StatusCache) Status(ctx context.Context, id string) (StatusEntry, error) {
	if e, ok := c.entries.Get(id); ok {
		return e, nil
	}
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return StatusEntry{}, err
	}
	e := StatusEntry{Status: rec.Status, Message: rec.StatusMessage}
	if e.Status.Terminal() {
		c.entries.Set(id, e)
	}
	return e, nil
}

// Invalidate drops the cached status of id.
func (c *StatusCache) Invalidate(id string) {
	c.entries.Delete(id)
}

// Stats returns the status cache counters.
func (c *StatusCache) Stats() cache.Stats {
	return c.entries.Stats()
}

// Len returns the number of cached statuses.
func (c *StatusCache) Len() int {
	return c.entries.Len()
}

// Close stops the background sweep.
func (c *StatusCache) Close() {
	c.entries.Close()
}
