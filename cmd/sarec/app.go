// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/config"
	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/docstore"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/recommend/storage"
	"github.com/tomtom215/sarec/internal/registry"
)

// configError marks failures that map to ExitConfigError.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ce *configError
	if errors.As(err, &ce) {
		return ExitConfigError
	}
	return ExitError
}

// ErrorResponse is printed to stdout when a command fails.
type ErrorResponse struct {
	Error string `json:"error"`
}

// app holds the stores shared by every command.
type app struct {
	cfg      *config.Config
	db       *badger.DB
	blobs    blob.Store
	models   *storage.ModelStore
	registry *registry.BadgerRegistry
	logger   zerolog.Logger
}

// appOverrides adjust the loaded configuration from command flags.
type appOverrides struct {
	blobRoot string
	inMemory bool
}

func (o appOverrides) apply(cfg *config.Config) {
	if o.blobRoot != "" {
		cfg.Storage.Backend = blob.BackendFilesystem
		cfg.Storage.Root = o.blobRoot
	}
	if o.inMemory {
		cfg.Database.InMemory = true
	}
}

// openApp loads configuration, initializes logging and opens the stores.
func openApp(ctx context.Context, o appOverrides) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &configError{err}
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err}
	}

	logCfg := cfg.Logging.Logger()
	logCfg.Version = Version
	logging.Init(logCfg)
	logger := logging.Logger()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	blobs, err := blob.New(ctx, cfg.Storage, db)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		blobs:    blobs,
		models:   storage.NewModelStore(blobs, logger),
		registry: registry.NewBadgerRegistry(db),
		logger:   logger,
	}, nil
}

// historyTables opens the per-model history table in the application database.
func (a *app) historyTables() history.TableFunc {
	return func(modelID string) (docstore.Store, error) {
		return docstore.NewBadgerStore(a.db, history.TableName(modelID))
	}
}

func (a *app) Close() {
	closeDB(a.db)
}

func closeDB(db *badger.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints err as an ErrorResponse and returns it for cobra.
func fail(err error) error {
	if perr := outputJSON(ErrorResponse{Error: err.Error()}); perr != nil {
		logging.Error().Err(perr).Msg("Failed to write error response")
	}
	return err
}
