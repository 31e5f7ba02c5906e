// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/sarec/internal/metrics"
)

// DefaultReportInterval is how often a Reporter publishes cache statistics.
const DefaultReportInterval = 15 * time.Second

// Reporter publishes the Stats of named caches to Prometheus. It implements
// suture.Service.
type Reporter struct {
	interval time.Duration

	mu      sync.Mutex
	sources map[string]func() Stats
}

// NewReporter creates a reporter. interval <= 0 uses DefaultReportInterval.
func NewReporter(interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{interval: interval, sources: make(map[string]func() Stats)}
}

// Track registers a cache under name, replacing any earlier source.
func (r *Reporter) Track(name string, stats func() Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = stats
}

// Report publishes one snapshot of every tracked cache.
func (r *Reporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, stats := range r.sources {
		s := stats()
		metrics.RecordCacheStats(name, s.Entries, s.Hits, s.Misses, s.Evictions)
	}
}

// Serve reports on every tick until ctx is done.
func (r *Reporter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.Report()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Report()
		}
	}
}

func (r *Reporter) String() string {
	return "cache-reporter"
}
