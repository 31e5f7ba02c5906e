// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
	"github.com/tomtom215/sarec/internal/validation"
)

// trainFlags are the flag values of the train command.
type trainFlags struct {
	modelID     string
	description string
	overrides   appOverrides

	catalog   string
	usage     string
	evalUsage string

	supportThreshold int
	similarity       string
	cooccurrenceUnit string
	decayDays        int
	maxErrors        int

	coldItems       bool
	coldToCold      bool
	userAffinity    bool
	userToItem      bool
	allowSeedItems  bool
	backfill        bool
	skipRegistering bool
}

var trainOpts trainFlags

func init() {
	rootCmd.AddCommand(trainCmd)
	bindTrainFlags(trainCmd, &trainOpts)
}

func bindTrainFlags(cmd *cobra.Command, o *trainFlags) {
	f := cmd.Flags()
	f.StringVar(&o.modelID, "model", "", "Model id (default: random UUID)")
	f.StringVar(&o.description, "description", "", "Free-form model description")
	f.StringVar(&o.overrides.blobRoot, "blob-root", "", "Read inputs and write the model under this local directory")
	f.BoolVar(&o.overrides.inMemory, "in-memory", false, "Use a throwaway in-memory database")

	f.StringVar(&o.catalog, "catalog", "", "Catalog file or folder (blob path)")
	f.StringVar(&o.usage, "usage", "", "Usage file or folder (blob path)")
	f.StringVar(&o.evalUsage, "eval-usage", "", "Evaluation usage file or folder (blob path)")

	f.IntVar(&o.supportThreshold, "support-threshold", 0, "Minimum co-occurrence count for a pair")
	f.StringVar(&o.similarity, "similarity", "", "Similarity function: Jaccard, Cooccurrence or Lift")
	f.StringVar(&o.cooccurrenceUnit, "cooccurrence-unit", "", "Co-occurrence unit: User or Timestamp")
	f.IntVar(&o.decayDays, "decay-days", 0, "Half-life of usage events in days (0 disables decay)")
	f.IntVar(&o.maxErrors, "max-errors", 0, "Rejected lines tolerated per file")

	f.BoolVar(&o.coldItems, "cold-items", false, "Place catalog items without usage via feature similarity")
	f.BoolVar(&o.coldToCold, "cold-to-cold", false, "Allow cold items to be recommended for cold seeds")
	f.BoolVar(&o.userAffinity, "user-affinity", false, "Weight seeds by per-user event weight and decay")
	f.BoolVar(&o.userToItem, "user-to-item", false, "Store user histories for personalized requests")
	f.BoolVar(&o.allowSeedItems, "allow-seed-items", false, "Allow seed items in results")
	f.BoolVar(&o.backfill, "backfill", false, "Fill short results with popular items")
	f.BoolVar(&o.skipRegistering, "no-register", false, "Do not record the run in the model registry")

	_ = cmd.MarkFlagRequired("usage")
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training pipeline and print its result",
	Long: `Train a model from a usage file or folder and an optional catalog.

Paths are blob paths relative to the configured storage backend. With
--blob-root they are read from a local directory instead.

Examples:
  sarec train --blob-root ./data --usage usage/ --catalog catalog.csv
  sarec train --model shop-v2 --usage usage/ --similarity Lift --decay-days 30`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

// parameters builds training parameters from defaults and the flags the user set.
func (f *trainFlags) parameters(cmd *cobra.Command, defaults training.Parameters) training.Parameters {
	p := defaults
	p.CatalogPath = f.catalog
	p.UsagePath = f.usage
	p.EvaluationUsagePath = f.evalUsage

	flags := cmd.Flags()
	if flags.Changed("support-threshold") {
		p.SupportThreshold = f.supportThreshold
	}
	if flags.Changed("similarity") {
		p.SimilarityFunction = recommend.SimilarityFunction(f.similarity)
	}
	if flags.Changed("cooccurrence-unit") {
		p.CooccurrenceUnit = recommend.CooccurrenceUnit(f.cooccurrenceUnit)
	}
	if flags.Changed("decay-days") {
		p.DecayPeriodInDays = f.decayDays
	}
	if flags.Changed("max-errors") {
		p.MaxErrors = f.maxErrors
	}
	if flags.Changed("cold-items") {
		p.EnableColdItemPlacement = f.coldItems
	}
	if flags.Changed("cold-to-cold") {
		p.EnableColdToColdRecommendations = f.coldToCold
	}
	if flags.Changed("user-affinity") {
		p.EnableUserAffinity = f.userAffinity
	}
	if flags.Changed("user-to-item") {
		p.EnableUserToItemRecommendations = f.userToItem
	}
	if flags.Changed("allow-seed-items") {
		p.AllowSeedItemsInRecommendations = f.allowSeedItems
	}
	if flags.Changed("backfill") {
		p.EnableBackfilling = f.backfill
	}
	return p.WithDefaults()
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, trainOpts.overrides)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	modelID := trainOpts.modelID
	if modelID == "" {
		modelID = uuid.NewString()
	}
	if !validation.ValidModelID(modelID) {
		return fail(&configError{fmt.Errorf("invalid model id %q", modelID)})
	}
	params := trainOpts.parameters(cmd, a.cfg.Training.Defaults)
	if err := params.Validate(); err != nil {
		return fail(&configError{err})
	}

	orch, err := training.New(training.Dependencies{
		Blobs:   a.blobs,
		Models:  a.models,
		History: a.historyTables(),
	}, a.cfg.Training.Options(a.cfg.History), a.logger)
	if err != nil {
		return fail(err)
	}

	register := !trainOpts.skipRegistering
	if register {
		err := a.registry.Create(ctx, registry.ModelRecord{
			ID:          modelID,
			Description: trainOpts.description,
			Status:      registry.StatusInProgress,
			Parameters:  params,
		})
		if err != nil {
			return fail(fmt.Errorf("register model %s: %w", modelID, err))
		}
	}

	if a.cfg.Training.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Training.Timeout)
		defer cancel()
	}

	res, trainErr := orch.Train(ctx, modelID, params)
	if register {
		status, msg := outcome(res, trainErr)
		_, err := a.registry.Update(context.WithoutCancel(ctx), modelID, func(r *registry.ModelRecord) error {
			r.Status = status
			r.StatusMessage = msg
			r.Result = res
			return nil
		})
		if err != nil {
			a.logger.Error().Err(err).Str("model_id", modelID).Msg("Failed to record training outcome")
		}
	}
	if trainErr != nil {
		return fail(trainErr)
	}
	if err := outputJSON(res); err != nil {
		return err
	}
	if !res.Succeeded {
		return errors.New(res.CompletionMessage)
	}
	return nil
}

// outcome maps a training result to its registry status.
func outcome(res *training.Result, err error) (registry.Status, string) {
	switch {
	case err == nil && res.Succeeded:
		return registry.StatusCompleted, res.CompletionMessage
	case err == nil:
		return registry.StatusFailed, res.CompletionMessage
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return registry.StatusAborted, "Training was cancelled"
	default:
		return registry.StatusFailed, err.Error()
	}
}
