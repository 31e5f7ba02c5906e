// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package blob

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Backend names accepted by New.
const (
	BackendBadger     = "badger"
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
)

// Config selects and configures a blob backend.
type Config struct {
	Backend string        `koanf:"backend"`
	Root    string        `koanf:"root"`
	GCS     GCSConfig     `koanf:"gcs"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// New builds the configured Store, instrumented with metrics. Remote backends
// are also wrapped in a circuit breaker. db is only used by the badger backend.
func New(ctx context.Context, cfg Config, db *badger.DB) (Store, error) {
	switch cfg.Backend {
	case BackendBadger, "":
		if db == nil {
			return nil, fmt.Errorf("badger blob backend requires an open database")
		}
		return Instrument(NewBadgerStore(db), BackendBadger), nil
	case BackendFilesystem:
		fs, err := NewFSStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return Instrument(fs, BackendFilesystem), nil
	case BackendGCS:
		gcs, err := NewGCSStore(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return Instrument(NewBreakerStore(gcs, "blob-gcs", cfg.Breaker), BackendGCS), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
