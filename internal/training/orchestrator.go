// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package training sequences one training run:
//
//	ValidateInputs -> DownloadInputs -> ParseCatalog -> ParseUsage ->
//	SortBySessionUnit -> StoreHistory (async) -> ParseEvaluationUsage ->
//	Train -> Evaluate -> AwaitHistoryStore -> StoreModel -> Done
//
// Data-quality failures end the run with a failed Result and a nil error.
// Infrastructure failures return the Result together with a *TrainingError.
// Cancellation returns the context error unwrapped.
package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/docstore"
	"github.com/tomtom215/sarec/internal/evaluate"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/index"
	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/metrics"
	"github.com/tomtom215/sarec/internal/parser"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/recommend/algorithms"
	"github.com/tomtom215/sarec/internal/recommend/storage"
	"github.com/tomtom215/sarec/internal/validation"
)

// Run outcomes recorded in metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// errHalted stops the pipeline after a data-quality failure.
var errHalted = errors.New("training halted")

// Dependencies are the stores a run reads from and writes to.
type Dependencies struct {
	// Blobs holds the raw input files.
	Blobs blob.Store

	// Models persists the trained artifact. Nil skips StoreModel.
	Models *storage.ModelStore

	// History opens the per-model history table. Nil disables
	// user-to-item recommendations.
	History history.TableFunc
}

// Options tune the orchestrator.
type Options struct {
	// WorkDir is the parent of per-run temporary directories. Default: os.TempDir().
	WorkDir string

	// Workers bounds trainer and evaluator parallelism. Default: GOMAXPROCS.
	Workers int

	// EvaluationK is the evaluator's prediction size. Default: evaluate.DefaultK.
	EvaluationK int

	History history.Options

	// Now supplies timestamps for usage rows without one. Default: time.Now.
	Now func() time.Time
}

// Orchestrator runs training pipelines. It is safe for concurrent use; each
// Train call owns its index maps and working directory.
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger
}

// New creates an orchestrator.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(deps Dependencies, opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	if deps.Blobs == nil {
		return nil, errors.New("training requires a blob store")
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.EvaluationK < 1 {
		opts.EvaluationK = evaluate.DefaultK
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "training").Logger(),
	}, nil
}

// run holds the state of one Train call.
type run struct {
	o       *Orchestrator
	modelID string
	params  Parameters
	result  *Result
	logger  zerolog.Logger

	dir   string
	local map[string]string // blob path -> local folder

	items *index.Map
	users *index.Map

	catalog   *parser.Catalog
	usage     *parser.Usage
	evalUsage *parser.Usage
	userCount int

	model *recommend.TrainedModel

	history      *pendingUpload
	historyTable docstore.Store
}

// pendingUpload is a history upload running alongside training.
type pendingUpload struct {
	cancel context.CancelFunc
	done   chan struct{}
	stats  history.UploadStats
	err    error
}

func (p *pendingUpload) wait() (history.UploadStats, error) {
	<-p.done
	return p.stats, p.err
}

// Train runs the full pipeline for modelID.
func (o *Orchestrator) Train(ctx context.Context, modelID string, params Parameters) (*Result, error) {
	ctx = logging.ContextWithLogger(logging.ContextWithModelID(ctx, modelID), o.logger)
	params = params.WithDefaults()

	r := &run{
		o:       o,
		modelID: modelID,
		params:  params,
		result: &Result{
			ModelID:    modelID,
			Parameters: params,
			StartedAt:  time.Now().UTC(),
		},
		logger: logging.CtxWith(ctx).Logger(),
		local:  make(map[string]string),
		items:  index.New(),
		users:  index.New(),
	}
	defer r.cleanup()

	r.logger.Info().
		Str("usage_path", params.UsagePath).
		Str("catalog_path", params.CatalogPath).
		Str("evaluation_usage_path", params.EvaluationUsagePath).
		Msg("Training started")

	err := r.execute(ctx)
	if err != nil {
		r.discardHistory(ctx)
	}
	r.result.TotalDuration = time.Since(r.result.StartedAt)
	return r.finish(ctx, err)
}

func (r *run) finish(ctx context.Context, err error) (*Result, error) {
	res := r.result
	switch {
	case err == nil:
		res.Succeeded = true
		res.Phase = PhaseDone
		res.Model = r.model
		res.CompletionMessage = fmt.Sprintf("Model %s trained in %s", r.modelID, res.TotalDuration.Round(time.Millisecond))
		metrics.RecordTrainingRun(OutcomeSucceeded)
		r.logger.Info().Dur("duration", res.TotalDuration).Msg("Training completed")
		return res, nil

	case errors.Is(err, errHalted):
		metrics.RecordTrainingRun(OutcomeFailed)
		r.logger.Warn().Str("phase", string(res.Phase)).Str("reason", res.CompletionMessage).Msg("Training failed")
		return res, nil

	case ctx.Err() != nil:
		res.CompletionMessage = fmt.Sprintf("Training cancelled during %s", res.Phase)
		metrics.RecordTrainingRun(OutcomeCancelled)
		r.logger.Info().Str("phase", string(res.Phase)).Msg("Training cancelled")
		return res, ctx.Err()

	default:
		res.CompletionMessage = fmt.Sprintf("Training failed during %s: %v", res.Phase, err)
		metrics.RecordTrainingRun(OutcomeError)
		r.logger.Error().Err(err).Str("phase", string(res.Phase)).Msg("Training error")
		return res, &TrainingError{Phase: res.Phase, ModelID: r.modelID, Cause: err}
	}
}

// halt ends the run with a data-quality failure.
func (r *run) halt(format string, args ...interface{}) error {
	r.result.CompletionMessage = fmt.Sprintf(format, args...)
	return errHalted
}

// stopUpload cancels a history upload still in flight and waits for it.
func (r *run) stopUpload() {
	if r.history != nil {
		r.history.cancel()
		<-r.history.done
		r.history = nil
	}
}

// discardHistory drops the documents an unsuccessful run already uploaded,
// so a failed or cancelled model never leaves a partial history table.
func (r *run) discardHistory(ctx context.Context) {
	if r.historyTable == nil {
		return
	}
	r.stopUpload()
	if err := r.historyTable.DeleteIfExists(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to discard partial user history")
		return
	}
	r.historyTable = nil
	r.logger.Debug().Msg("Discarded partial user history")
}

// cleanup abandons a history upload still in flight and removes the working directory.
func (r *run) cleanup() {
	r.stopUpload()
	if r.dir != "" {
		if err := os.RemoveAll(r.dir); err != nil {
			r.logger.Warn().Err(err).Str("dir", r.dir).Msg("Failed to remove working directory")
		}
	}
}

// phase runs fn as phase p and records its duration.
func (r *run) phase(ctx context.Context, p Phase, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.result.Phase = p
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	r.result.Durations = append(r.result.Durations, PhaseDuration{Phase: p, Duration: d})
	metrics.RecordTrainingPhase(string(p), d)
	r.logger.Debug().Str("phase", string(p)).Dur("duration", d).Msg("Phase finished")
	return err
}

func (r *run) execute(ctx context.Context) error {
	steps := []struct {
		phase Phase
		fn    func(context.Context) error
		skip  bool
	}{
		{PhaseValidateInputs, r.validate, false},
		{PhaseDownloadInputs, r.download, false},
		{PhaseParseCatalog, r.parseCatalog, r.params.CatalogPath == ""},
		{PhaseParseUsage, r.parseUsage, false},
		{PhaseSortBySessionUnit, r.sort, false},
		{PhaseStoreHistory, r.storeHistory, !r.params.EnableUserToItemRecommendations},
		{PhaseParseEvaluationUsage, r.parseEvaluationUsage, r.params.EvaluationUsagePath == ""},
		{PhaseTrain, r.train, false},
		{PhaseEvaluate, r.evaluate, r.params.EvaluationUsagePath == ""},
		{PhaseAwaitHistoryStore, r.awaitHistory, !r.params.EnableUserToItemRecommendations},
		{PhaseStoreModel, r.storeModel, r.o.deps.Models == nil},
	}
	for _, s := range steps {
		if s.skip {
			continue
		}
		if err := r.phase(ctx, s.phase, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) validate(_ context.Context) error {
	if !validation.ValidModelID(r.modelID) {
		return r.halt("Invalid model id %q", r.modelID)
	}
	if err := r.params.Validate(); err != nil {
		return r.halt("Invalid training parameters: %v", err)
	}
	if r.params.EnableUserToItemRecommendations && r.o.deps.History == nil {
		return r.halt("User-to-item recommendations require a history store")
	}
	return nil
}

func (r *run) download(ctx context.Context) error {
	dir, err := os.MkdirTemp(r.o.opts.WorkDir, "sarec-"+r.modelID+"-")
	if err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	r.dir = dir

	inputs := []struct {
		kind string
		path string
	}{
		{parser.FileCatalog, r.params.CatalogPath},
		{parser.FileUsage, r.params.UsagePath},
		{parser.FileEvaluationUsage, r.params.EvaluationUsagePath},
	}
	for _, in := range inputs {
		if in.path == "" {
			continue
		}
		n, err := r.fetch(ctx, in.kind, in.path)
		if err != nil {
			return err
		}
		if n == 0 {
			return r.halt("No %s blobs found at %q", in.kind, in.path)
		}
	}
	return nil
}

// fetch downloads the blob at name, or every blob under it when name is a
// prefix, into its own folder. Files keep the blob name order.
func (r *run) fetch(ctx context.Context, kind, name string) (int, error) {
	names, err := r.resolve(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("resolve %s blobs %q: %w", kind, name, err)
	}
	if len(names) == 0 {
		return 0, nil
	}

	folder := filepath.Join(r.dir, kind)
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return 0, fmt.Errorf("create %s folder: %w", kind, err)
	}
	for i, n := range names {
		data, err := r.o.deps.Blobs.Download(ctx, n)
		if err != nil {
			return 0, fmt.Errorf("download %s blob %q: %w", kind, n, err)
		}
		local := filepath.Join(folder, fmt.Sprintf("%05d-%s", i, path.Base(n)))
		if err := os.WriteFile(local, data, 0o600); err != nil {
			return 0, fmt.Errorf("write %s: %w", local, err)
		}
	}
	r.local[kind] = folder
	r.logger.Debug().Str("file_type", kind).Int("blobs", len(names)).Msg("Inputs downloaded")
	return len(names), nil
}

func (r *run) resolve(ctx context.Context, name string) ([]string, error) {
	ok, err := r.o.deps.Blobs.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return []string{name}, nil
	}
	prefix := strings.TrimSuffix(name, "/") + "/"
	listed, err := r.o.deps.Blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := listed[:0]
	for _, n := range listed {
		if strings.HasSuffix(n, "/") || strings.HasPrefix(path.Base(n), ".") {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

func (r *run) parserOptions() parser.Options {
	return parser.Options{MaxErrors: r.params.MaxErrors, Now: r.o.opts.Now}
}

// checkReport halts the run when a report failed.
func (r *run) checkReport(report *parser.Report) error {
	if report.Failed {
		return r.halt("Parsing %s failed: %s", report.FileType, report.FailureReason)
	}
	return nil
}

func (r *run) parseCatalog(ctx context.Context) error {
	catalog, report, err := parser.ParseCatalog(ctx, r.local[parser.FileCatalog], r.items, r.parserOptions())
	r.result.CatalogReport = report
	if err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	r.logger.Info().Str("report", report.Summary()).Msg("Catalog parsed")
	if err := r.checkReport(report); err != nil {
		return err
	}
	r.catalog = catalog
	return nil
}

func (r *run) parseUsage(ctx context.Context) error {
	usage, report, err := parser.ParseUsage(ctx, r.local[parser.FileUsage], r.items, r.users, parser.UsageOptions{
		Options:        r.parserOptions(),
		FileType:       parser.FileUsage,
		KnownItemsOnly: r.catalog != nil,
	})
	r.result.UsageReport = report
	if err != nil {
		return fmt.Errorf("parse usage: %w", err)
	}
	r.logger.Info().Str("report", report.Summary()).Msg("Usage parsed")
	if err := r.checkReport(report); err != nil {
		return err
	}
	r.usage = usage
	return nil
}

func (r *run) sort(_ context.Context) error {
	algorithms.SortBySessionUnit(r.usage.Events)
	r.userCount = algorithms.CountUsers(r.usage.Events)
	return nil
}

// storeHistory encodes every user's documents now, while the user map is
// still populated, and uploads them in the background.
func (r *run) storeHistory(ctx context.Context) error {
	table, err := r.o.deps.History(r.modelID)
	if err != nil {
		return fmt.Errorf("open history table: %w", err)
	}
	writer := history.NewWriter(table, r.userCount, r.o.opts.History, r.logger)
	batch, err := writer.Prepare(ctx, r.usage.Events, r.users)
	if err != nil {
		return fmt.Errorf("prepare history: %w", err)
	}

	uctx, cancel := context.WithCancel(ctx)
	p := &pendingUpload{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.stats, p.err = writer.Send(uctx, batch)
	}()
	r.history = p
	r.historyTable = table
	return nil
}

func (r *run) parseEvaluationUsage(ctx context.Context) error {
	usage, report, err := parser.ParseUsage(ctx, r.local[parser.FileEvaluationUsage], r.items, r.users, parser.UsageOptions{
		Options:        r.parserOptions(),
		FileType:       parser.FileEvaluationUsage,
		KnownItemsOnly: true,
	})
	r.result.EvaluationUsageReport = report
	if err != nil {
		return fmt.Errorf("parse evaluation usage: %w", err)
	}
	r.logger.Info().Str("report", report.Summary()).Msg("Evaluation usage parsed")
	if err := r.checkReport(report); err != nil {
		return err
	}
	r.evalUsage = usage
	return nil
}

func (r *run) train(ctx context.Context) error {
	trainer := algorithms.NewTrainer(algorithms.Config{
		SupportThreshold:                r.params.SupportThreshold,
		Unit:                            r.params.CooccurrenceUnit,
		Function:                        r.params.SimilarityFunction,
		EnableColdItemPlacement:         r.params.EnableColdItemPlacement,
		EnableColdToColdRecommendations: r.params.EnableColdToColdRecommendations,
		Workers:                         r.o.opts.Workers,
	}, r.logger)

	in := algorithms.Input{Usage: r.usage.Events, ItemCount: r.items.Len()}
	if r.catalog != nil {
		in.Catalog = r.catalog.Items
		in.FeatureNames = r.catalog.FeatureNames
	}
	sim, stats, err := trainer.Train(ctx, in)
	if err != nil {
		return fmt.Errorf("train similarity model: %w", err)
	}

	props := recommend.Properties{
		IncludeHistory:        r.params.AllowSeedItemsInRecommendations,
		EnableUserAffinity:    r.params.EnableUserAffinity,
		IsUserToItemSupported: r.params.EnableUserToItemRecommendations,
		EnableBackfilling:     r.params.EnableBackfilling,
		ReferenceDate:         r.usage.MaxTimestamp,
		Decay:                 r.params.Decay(),
		UniqueUsersCount:      r.userCount,
	}
	r.model = &recommend.TrainedModel{
		Properties: props,
		Items:      r.items.Keys(),
		Similarity: sim,
	}
	metrics.TrainedPairs.Observe(float64(len(sim.Pairs)))
	r.result.Training = &stats
	r.result.FeatureWeights = sim.FeatureWeights
	r.result.Properties = &props

	// The model's reverse index now owns every id that matters.
	r.items.Clear()
	r.users.Clear()
	r.catalog = nil
	return nil
}

func (r *run) evaluate(ctx context.Context) error {
	ev := evaluate.New(evaluate.Options{K: r.o.opts.EvaluationK, Workers: r.o.opts.Workers}, r.logger)
	res, err := ev.Evaluate(ctx, r.model, r.usage.Events, r.evalUsage.Events)
	if err != nil {
		return fmt.Errorf("evaluate model: %w", err)
	}
	r.result.Evaluation = res
	return nil
}

func (r *run) awaitHistory(_ context.Context) error {
	p := r.history
	stats, err := p.wait()
	p.cancel()
	r.history = nil
	if err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	r.result.History = &stats
	return nil
}

func (r *run) storeModel(ctx context.Context) error {
	meta, err := r.o.deps.Models.Save(ctx, r.modelID, r.model, storage.Metadata{
		TrainedAt:        time.Now().UTC(),
		UserCount:        r.userCount,
		UsageEventCount:  len(r.usage.Events),
		TrainingDuration: time.Since(r.result.StartedAt).Milliseconds(),
	})
	if err != nil {
		return err
	}
	r.result.Artifact = meta
	return nil
}
