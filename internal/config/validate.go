// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/sarec/internal/blob"
)

// Validate checks that required configuration is present and valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateServing(); err != nil {
		return err
	}
	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	return c.validateServer()
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic (got %q)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Logging.Format)
	}
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case blob.BackendBadger:
	case blob.BackendFilesystem:
		if c.Storage.Root == "" {
			return fmt.Errorf("STORAGE_ROOT is required when STORAGE_BACKEND=%s", blob.BackendFilesystem)
		}
	case blob.BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=%s", blob.BackendGCS)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of %s, %s, %s (got %q)",
			blob.BackendBadger, blob.BackendFilesystem, blob.BackendGCS, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateTraining() error {
	if c.Training.Workers < 0 {
		return fmt.Errorf("TRAINING_WORKERS must be >= 0 (got %d)", c.Training.Workers)
	}
	if c.Training.EvaluationK < 0 {
		return fmt.Errorf("TRAINING_EVALUATION_K must be >= 0 (got %d)", c.Training.EvaluationK)
	}
	if c.Training.Timeout < 0 {
		return fmt.Errorf("TRAINING_TIMEOUT must not be negative")
	}
	d := c.Training.Defaults
	if d.SupportThreshold < 0 {
		return fmt.Errorf("TRAINING_SUPPORT_THRESHOLD must be >= 0 (got %d)", d.SupportThreshold)
	}
	if d.SimilarityFunction != "" && !d.SimilarityFunction.Valid() {
		return fmt.Errorf("TRAINING_SIMILARITY must be Jaccard, Cooccurrence or Lift (got %q)", d.SimilarityFunction)
	}
	if d.CooccurrenceUnit != "" && !d.CooccurrenceUnit.Valid() {
		return fmt.Errorf("TRAINING_COOCCURRENCE_UNIT must be User or Timestamp (got %q)", d.CooccurrenceUnit)
	}
	if d.DecayPeriodInDays < 0 {
		return fmt.Errorf("TRAINING_DECAY_DAYS must be >= 0 (got %d)", d.DecayPeriodInDays)
	}
	if d.MaxErrors < 0 {
		return fmt.Errorf("TRAINING_MAX_ERRORS must be >= 0 (got %d)", d.MaxErrors)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.MaxConcurrentUploads < 0 {
		return fmt.Errorf("HISTORY_MAX_CONCURRENT_UPLOADS must be >= 0 (got %d)", c.History.MaxConcurrentUploads)
	}
	if c.History.UploadsPerSecond < 0 {
		return fmt.Errorf("HISTORY_UPLOADS_PER_SECOND must be >= 0 (got %v)", c.History.UploadsPerSecond)
	}
	return nil
}

func (c *Config) validateServing() error {
	if c.Serving.ModelTTL < 0 || c.Serving.EngineTTL < 0 || c.Serving.StatusTTL < 0 {
		return fmt.Errorf("serving cache TTLs must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Addr == "" {
		return nil
	}
	if !strings.Contains(c.Server.Addr, ":") {
		return fmt.Errorf("HTTP_ADDR must be host:port or :port (got %q)", c.Server.Addr)
	}
	return nil
}
