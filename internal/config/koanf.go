// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/jobs"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/recommend/storage"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"sarec.yaml",
	"sarec.yml",
	"/etc/sarec/sarec.yaml",
	"/etc/sarec/sarec.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: database.Config{
			Path:       "/data/sarec",
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Storage: blob.Config{
			Backend: blob.BackendBadger,
			Root:    "/data/blobs",
			GCS: blob.GCSConfig{
				OperationTimeout: 2 * time.Minute,
			},
			Breaker: blob.DefaultBreakerConfig(),
		},
		Training: TrainingConfig{
			EvaluationK: 5,
			Timeout:     2 * time.Hour,
			Defaults:    training.DefaultParameters(),
		},
		History: HistoryConfig{
			MaxConcurrentUploads: history.DefaultMaxConcurrentUploads,
			MaxEventsPerUser:     history.MaxEvents,
		},
		Serving: ServingConfig{
			ModelTTL:  storage.DefaultModelTTL,
			EngineTTL: recommend.DefaultEngineTTL,
			StatusTTL: registry.DefaultStatusTTL,
		},
		Jobs: jobs.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":9090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load reads configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first existing
// default path, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"database_path":        "database.path",
	"database_in_memory":   "database.in_memory",
	"database_sync_writes": "database.sync_writes",
	"database_compression": "database.compression",
	"database_gc_interval": "database.gc_interval",
	"database_gc_ratio":    "database.gc_ratio",

	"storage_backend":           "storage.backend",
	"storage_root":              "storage.root",
	"gcs_bucket":                "storage.gcs.bucket",
	"gcs_prefix":                "storage.gcs.prefix",
	"gcs_emulator_host":         "storage.gcs.emulator_host",
	"gcs_credentials_file":      "storage.gcs.credentials_file",
	"gcs_operation_timeout":     "storage.gcs.operation_timeout",
	"breaker_max_requests":      "storage.breaker.max_requests",
	"breaker_interval":          "storage.breaker.interval",
	"breaker_timeout":           "storage.breaker.timeout",
	"breaker_consecutive_fails": "storage.breaker.consecutive_failures",

	"training_work_dir":          "training.work_dir",
	"training_workers":           "training.workers",
	"training_evaluation_k":      "training.evaluation_k",
	"training_timeout":           "training.timeout",
	"training_support_threshold": "training.defaults.support_threshold",
	"training_similarity":        "training.defaults.similarity_function",
	"training_cooccurrence_unit": "training.defaults.cooccurrence_unit",
	"training_decay_days":        "training.defaults.decay_period_in_days",
	"training_max_errors":        "training.defaults.max_errors",

	"history_max_concurrent_uploads": "history.max_concurrent_uploads",
	"history_uploads_per_second":     "history.uploads_per_second",
	"history_max_events_per_user":    "history.max_events_per_user",

	"serving_model_ttl":  "serving.model_ttl",
	"serving_engine_ttl": "serving.engine_ttl",
	"serving_status_ttl": "serving.status_ttl",

	"jobs_backend":            "jobs.backend",
	"jobs_topic":              "jobs.topic",
	"jobs_close_timeout":      "jobs.close_timeout",
	"jobs_max_retries":        "jobs.retry.max_retries",
	"jobs_retry_interval":     "jobs.retry.initial_interval",
	"jobs_retry_max_interval": "jobs.retry.max_interval",
	"nats_url":                "jobs.nats.url",
	"nats_queue_group":        "jobs.nats.queue_group",
	"nats_durable_name":       "jobs.nats.durable_name",
	"nats_ack_wait":           "jobs.nats.ack_wait",

	"http_addr":             "server.addr",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
}

// envTransformFunc maps environment variable names to config keys.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
