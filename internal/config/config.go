// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package config

import (
	"time"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/jobs"
	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/training"
)

// Config is the complete application configuration.
type Config struct {
	Logging  LoggingConfig   `koanf:"logging"`
	Database database.Config `koanf:"database"`
	Storage  blob.Config     `koanf:"storage"`
	Training TrainingConfig  `koanf:"training"`
	History  HistoryConfig   `koanf:"history"`
	Serving  ServingConfig   `koanf:"serving"`
	Jobs     jobs.Config     `koanf:"jobs"`
	Server   ServerConfig    `koanf:"server"`
}

// LoggingConfig mirrors logging.Config without the output writer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Logger converts the section for logging.Init.
func (c LoggingConfig) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	cfg.Caller = c.Caller
	return cfg
}

// TrainingConfig tunes the orchestrator.
type TrainingConfig struct {
	// WorkDir holds per-run temporary directories. Empty means os.TempDir().
	WorkDir string `koanf:"work_dir"`

	// Workers bounds trainer and evaluator parallelism. Zero means GOMAXPROCS.
	Workers int `koanf:"workers"`

	EvaluationK int `koanf:"evaluation_k"`

	// Timeout bounds one training run. Zero means no limit.
	Timeout time.Duration `koanf:"timeout"`

	// Defaults fill parameters a job leaves unset.
	Defaults training.Parameters `koanf:"defaults"`
}

// Options converts the section for training.New.
func (c *TrainingConfig) Options(h HistoryConfig) training.Options {
	return training.Options{
		WorkDir:     c.WorkDir,
		Workers:     c.Workers,
		EvaluationK: c.EvaluationK,
		History:     h.Options(),
	}
}

// HistoryConfig tunes user history uploads.
type HistoryConfig struct {
	MaxConcurrentUploads int     `koanf:"max_concurrent_uploads"`
	UploadsPerSecond     float64 `koanf:"uploads_per_second"`
	MaxEventsPerUser     int     `koanf:"max_events_per_user"`
}

// Options converts the section for history.NewWriter.
func (c HistoryConfig) Options() history.Options {
	return history.Options{
		MaxConcurrentUploads: c.MaxConcurrentUploads,
		UploadsPerSecond:     c.UploadsPerSecond,
		MaxEventsPerUser:     c.MaxEventsPerUser,
	}
}

// ServingConfig sets cache lifetimes on the scoring path.
type ServingConfig struct {
	// ModelTTL is the absolute lifetime of a decoded model in memory.
	ModelTTL time.Duration `koanf:"model_ttl"`

	// EngineTTL is the sliding lifetime of a scoring engine.
	EngineTTL time.Duration `koanf:"engine_ttl"`

	// StatusTTL is how long a terminal model status is cached.
	StatusTTL time.Duration `koanf:"status_ttl"`
}

// ServerConfig configures the ops HTTP listener.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the listener.
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}
