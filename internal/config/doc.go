// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

/*
Package config loads SARec configuration.

# Sources

Values are layered, later sources overriding earlier ones:
  - built-in defaults (defaultConfig)
  - a YAML file: CONFIG_PATH, else the first of DefaultConfigPaths that exists
  - environment variables from the mapping table in envTransformFunc
  - a .env file in the working directory, loaded into the environment first

# Sections

  - logging: level, format, caller
  - database: BadgerDB path, in-memory mode, value-log GC
  - storage: blob backend (badger, filesystem, gcs) and its circuit breaker
  - training: working directory, parallelism, default training parameters
  - history: upload concurrency and throttling
  - serving: model, engine and status cache lifetimes
  - jobs: queue backend (gochannel, nats), topic, retry policy
  - server: ops HTTP listener

# Environment Variables

Only mapped names are read. Examples:

	LOG_LEVEL=debug
	DATABASE_PATH=/data/sarec
	STORAGE_BACKEND=gcs
	GCS_BUCKET=my-bucket
	JOBS_BACKEND=nats
	NATS_URL=nats://nats:4222
	HTTP_ADDR=:9090
*/
package config
