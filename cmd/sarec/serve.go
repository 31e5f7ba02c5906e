// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sarec/internal/api"
	"github.com/tomtom215/sarec/internal/cache"
	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/jobs"
	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/recommend/storage"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/supervisor"
	"github.com/tomtom215/sarec/internal/supervisor/services"
	"github.com/tomtom215/sarec/internal/training"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the training-job consumer and the ops HTTP API",
	Long: `Consume training jobs from the configured queue (in-process channel or
NATS JetStream), and serve health, metrics, model management and
recommendation endpoints on HTTP_ADDR.

Services run under a supervisor tree and restart on failure. SIGINT or
SIGTERM starts a graceful shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// timeoutTrainer bounds each training run.
type timeoutTrainer struct {
	orch    *training.Orchestrator
	timeout time.Duration
}

func (t timeoutTrainer) Train(ctx context.Context, modelID string, params training.Parameters) (*training.Result, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.orch.Train(ctx, modelID, params)
}

//nolint:gocyclo // sequential wiring of every service
func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, appOverrides{})
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	cfg := a.cfg

	logging.Info().
		Str("version", Version).
		Str("storage_backend", cfg.Storage.Backend).
		Str("jobs_backend", cfg.Jobs.Backend).
		Str("http_addr", cfg.Server.Addr).
		Msg("Starting sarec")

	// Scoring path
	models := storage.NewModelCache(a.models, cfg.Serving.ModelTTL)
	defer models.Close()
	engines := recommend.NewEngineCache(cfg.Serving.EngineTTL)
	defer engines.Close()
	tables := a.historyTables()
	recommender := recommend.NewRecommender(models, history.NewReader(tables), engines, a.logger)

	statuses := registry.NewStatusCache(a.registry, cfg.Serving.StatusTTL)
	defer statuses.Close()

	// Training path
	orch, err := training.New(training.Dependencies{
		Blobs:   a.blobs,
		Models:  a.models,
		History: tables,
	}, cfg.Training.Options(cfg.History), a.logger)
	if err != nil {
		return fail(err)
	}

	transport, err := jobs.NewTransport(&cfg.Jobs, logging.NewWatermillAdapter(logging.WithComponent("watermill")))
	if err != nil {
		return fail(fmt.Errorf("connect jobs transport: %w", err))
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing jobs transport")
		}
	}()
	publisher := jobs.NewPublisher(transport.Publisher, cfg.Jobs.Topic)
	consumer := jobs.NewConsumer(&cfg.Jobs, transport.Subscriber,
		timeoutTrainer{orch: orch, timeout: cfg.Training.Timeout}, a.registry, a.logger)

	tree := supervisor.NewTree(logging.NewSlogLogger(logging.WithComponent("supervisor")), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout + cfg.Jobs.CloseTimeout,
	})

	if cfg.Database.GCInterval > 0 && !cfg.Database.InMemory {
		tree.AddStorageService(database.NewGCService(a.db, cfg.Database.GCInterval, cfg.Database.GCRatio))
	}
	tree.AddJobsService(consumer)

	reporter := cache.NewReporter(cache.DefaultReportInterval)
	reporter.Track("engine", engines.Stats)
	reporter.Track("model", models.Stats)
	reporter.Track("status", statuses.Stats)
	tree.AddAPIService(reporter)

	if cfg.Server.Addr != "" {
		handler := api.NewHandler(api.Dependencies{
			Registry:    a.registry,
			Statuses:    statuses,
			Recommender: recommender,
			Jobs:        publisher,
			Models:      models,
			History:     tables,
			Defaults:    cfg.Training.Defaults,
			Ready: func(context.Context) error {
				if a.db.IsClosed() {
					return errors.New("database closed")
				}
				return nil
			},
		})
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(handler),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		tree.AddAPIService(services.NewHTTPServerService("ops-http", server, cfg.Server.ShutdownTimeout))
	}

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
