// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/sarec/internal/cache"
	"github.com/tomtom215/sarec/internal/metrics"
)

// DefaultEngineTTL is the sliding expiry of cached engines.
const DefaultEngineTTL = 24 * time.Hour

// EngineKey is the rounded parameter tuple an Engine is bound to.
type EngineKey struct {
	ModelID        string
	Count          int
	IncludeHistory bool
	ReferenceDate  time.Time
	Decay          time.Duration
}

func (k EngineKey) String() string {
	return fmt.Sprintf("%s|%d|%t|%d|%d", k.ModelID, k.Count, k.IncludeHistory, k.ReferenceDate.Unix(), int64(k.Decay))
}

// RoundCount rounds a requested recommendation count up to the next multiple
// of 10, with a minimum of 5.
func RoundCount(k int) int {
	if k <= 5 {
		return 5
	}
	return ((k + 9) / 10) * 10
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// NewEngineKey builds the rounded key for a scoring call against model.
// latest is the newest event timestamp of the call; the reference date is the
// later of it and the model's reference date.
func NewEngineKey(modelID string, model *TrainedModel, k int, latest time.Time) EngineKey {
	ref := model.Properties.ReferenceDate
	if latest.After(ref) {
		ref = latest
	}
	return EngineKey{
		ModelID:        modelID,
		Count:          RoundCount(k),
		IncludeHistory: model.Properties.IncludeHistory,
		ReferenceDate:  NextMidnight(ref),
		Decay:          model.Properties.Decay,
	}
}

// Engine is a scorer bound to one EngineKey. Predict calls on the same
// Engine are serialized.
type Engine struct {
	mu sync.Mutex
	s  scorer
}

// NewEngine compiles an engine for model.
func NewEngine(model *TrainedModel, key EngineKey) *Engine {
	return &Engine{s: scorer{
		model:          model,
		count:          key.Count,
		includeHistory: key.IncludeHistory,
		referenceDate:  key.ReferenceDate,
		decay:          key.Decay,
	}}
}

// Count returns the rounded number of results this engine produces.
func (e *Engine) Count() int {
	return e.s.count
}

// Predict scores events and returns at most Count() items.
func (e *Engine) Predict(ctx context.Context, events []UsageEvent) ([]ScoredItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.score(ctx, events)
}

// EngineCache caches compiled engines with a sliding expiry.
type EngineCache struct {
	engines *cache.Cache[*Engine]
}

// NewEngineCache creates an engine cache. ttl <= 0 uses DefaultEngineTTL.
func NewEngineCache(ttl time.Duration) *EngineCache {
	if ttl <= 0 {
		ttl = DefaultEngineTTL
	}
	return &EngineCache{engines: cache.New[*Engine](cache.Options{
		TTL:           ttl,
		Policy:        cache.Sliding,
		SweepInterval: time.Hour,
	})}
}

// Engine returns the cached engine for key, compiling one on a miss.
func (c *EngineCache) Engine(model *TrainedModel, key EngineKey) *Engine {
	e, hit := c.engines.GetOrCreate(key.String(), func() *Engine {
		return NewEngine(model, key)
	})
	metrics.RecordEngineCache(hit)
	return e
}

// Evict drops every engine compiled for modelID.
func (c *EngineCache) Evict(modelID string) int {
	prefix := modelID + "|"
	return c.engines.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// Stats returns the engine cache counters.
func (c *EngineCache) Stats() cache.Stats {
	return c.engines.Stats()
}

// Len returns the number of cached engines.
func (c *EngineCache) Len() int {
	return c.engines.Len()
}

// Close stops the background sweep.
func (c *EngineCache) Close() {
	c.engines.Close()
}
