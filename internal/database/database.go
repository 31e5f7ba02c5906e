// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package database opens the embedded BadgerDB instance shared by the local
// blob store, the history document store and the model registry.
//
// Each consumer owns a key prefix, so one database directory holds all three:
//
//	blob/<name>                 blob contents
//	doc/<table>/<partition>/<id> history documents
//	model/<id>                  registry records
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/sarec/internal/logging"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the directory holding the database files. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps everything in RAM. Used by tests and throwaway CLI runs.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites forces fsync after every write.
	SyncWrites bool `koanf:"sync_writes"`

	// Compression enables Snappy block compression.
	Compression bool `koanf:"compression"`

	// GCInterval is the value-log garbage collection period. Zero disables GC.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the discard ratio passed to RunValueLogGC.
	GCRatio float64 `koanf:"gc_ratio"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("database path is required unless in_memory is set")
	}
	if c.GCRatio < 0 || c.GCRatio >= 1 {
		return fmt.Errorf("gc_ratio must be in [0, 1), got %v", c.GCRatio)
	}
	return nil
}

// Open opens (or creates) the database.
func Open(cfg Config) (*badger.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Database opened")
	return db, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*badger.DB, error) {
	return Open(Config{InMemory: true})
}

// Keys returns every key under prefix in lexical order, without the prefix.
func Keys(ctx context.Context, db *badger.DB, prefix []byte) ([]string, error) {
	var keys []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
			if n%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeletePrefix removes every key under prefix.
func DeletePrefix(db *badger.DB, prefix []byte) error {
	if err := db.DropPrefix(prefix); err != nil {
		return fmt.Errorf("drop prefix %q: %w", prefix, err)
	}
	return nil
}

// GCService runs BadgerDB value-log garbage collection on an interval.
// It implements suture.Service.
type GCService struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
}

// NewGCService creates a GC service. A zero ratio defaults to 0.5.
func NewGCService(db *badger.DB, interval time.Duration, ratio float64) *GCService {
	if ratio == 0 {
		ratio = 0.5
	}
	return &GCService{db: db, interval: interval, ratio: ratio}
}

// Serve runs until ctx is cancelled.
func (s *GCService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
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

// collect runs GC until no more value-log files can be rewritten.
func (s *GCService) collect() {
	runs := 0
	for {
		if err := s.db.RunValueLogGC(s.ratio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) &&
				!errors.Is(err, badger.ErrGCInMemoryMode) {
				logging.Warn().Err(err).Msg("Value log GC failed")
			}
			break
		}
		runs++
	}
	if runs > 0 {
		logging.Debug().Int("runs", runs).Msg("Value log GC completed")
	}
}

// String names the service in supervisor logs.
func (s *GCService) String() string {
	return "database-gc"
}
