// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package metrics exposes the Prometheus collectors for parsing, training,
// scoring, history uploads, storage and job processing.
//
// All collectors register with the default registry through promauto and are
// served by the ops router at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parsing Metrics
	ParseLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_parse_lines_total",
			Help: "Parsed input lines by file type and outcome",
		},
		[]string{"file_type", "outcome"}, // outcome: "success", "error", "warning"
	)

	// Training Metrics
	TrainingPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sarec_training_phase_duration_seconds",
			Help:    "Wall-clock duration of each training phase",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"phase"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_training_runs_total",
			Help: "Completed training runs by outcome",
		},
		[]string{"outcome"}, // "succeeded", "failed", "cancelled", "error"
	)

	TrainedPairs = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sarec_trained_pairs",
			Help:    "Number of similarity pairs in trained models",
			Buckets: prometheus.ExponentialBuckets(10, 10, 7),
		},
	)

	// Scoring Metrics
	EngineCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_engine_cache_total",
			Help: "Scoring engine cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// In-memory cache snapshots, refreshed by the cache reporter.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sarec_cache_entries",
			Help: "Entries held by each in-memory cache",
		},
		[]string{"cache"}, // "engine", "model", "status"
	)

	CacheLookups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sarec_cache_lookups",
			Help: "Lookups served by each in-memory cache since start, by result",
		},
		[]string{"cache", "result"},
	)

	CacheEvictions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sarec_cache_evictions",
			Help: "Entries evicted from each in-memory cache since start",
		},
		[]string{"cache"},
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sarec_recommend_duration_seconds",
			Help:    "Latency of recommendation requests",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// History Metrics
	HistoryUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_history_uploads_total",
			Help: "User history partition uploads by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	HistoryDocuments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sarec_history_documents_total",
			Help: "User history documents written",
		},
	)

	// Storage Metrics
	BlobOperations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sarec_blob_operation_duration_seconds",
			Help:    "Blob store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sarec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Job Metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_jobs_processed_total",
			Help: "Training jobs consumed from the queue by outcome",
		},
		[]string{"outcome"}, // "acked", "nacked", "poison"
	)

	JobsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sarec_jobs_published_total",
			Help: "Training jobs published to the queue",
		},
	)

	// Ops API Metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarec_api_requests_total",
			Help: "Ops API requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordParse adds one file's line counters.
func RecordParse(fileType string, success, errors, warnings int) {
	ParseLines.WithLabelValues(fileType, "success").Add(float64(success))
	ParseLines.WithLabelValues(fileType, "error").Add(float64(errors))
	ParseLines.WithLabelValues(fileType, "warning").Add(float64(warnings))
}

// RecordTrainingPhase observes the duration of one orchestrator phase.
func RecordTrainingPhase(phase string, duration time.Duration) {
	TrainingPhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordTrainingRun counts one finished training run.
func RecordTrainingRun(outcome string) {
	TrainingRuns.WithLabelValues(outcome).Inc()
}

// RecordEngineCache counts an engine cache lookup.
func RecordEngineCache(hit bool) {
	if hit {
		EngineCache.WithLabelValues("hit").Inc()
		return
	}
	EngineCache.WithLabelValues("miss").Inc()
}

// RecordCacheStats publishes a snapshot of one cache's counters.
func RecordCacheStats(name string, entries int, hits, misses, evictions int64) {
	CacheEntries.WithLabelValues(name).Set(float64(entries))
	CacheLookups.WithLabelValues(name, "hit").Set(float64(hits))
	CacheLookups.WithLabelValues(name, "miss").Set(float64(misses))
	CacheEvictions.WithLabelValues(name).Set(float64(evictions))
}

// RecordHistoryUpload counts one partition upload.
func RecordHistoryUpload(documents int, err error) {
	if err != nil {
		HistoryUploads.WithLabelValues("error").Inc()
		return
	}
	HistoryUploads.WithLabelValues("success").Inc()
	HistoryDocuments.Add(float64(documents))
}

// RecordBlobOperation observes one blob store call.
func RecordBlobOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	BlobOperations.WithLabelValues(backend, operation, status).Observe(duration.Seconds())
}

// RecordAPIRequest counts one ops API request.
func RecordAPIRequest(method, route string, statusCode int) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
}

// RecordJob counts one consumed training job.
func RecordJob(outcome string) {
	JobsProcessed.WithLabelValues(outcome).Inc()
}
