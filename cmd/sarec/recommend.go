// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/recommend/storage"
)

var recommendOpts struct {
	modelID   string
	items     string
	userID    string
	k         int
	overrides appOverrides
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	f := recommendCmd.Flags()
	f.StringVar(&recommendOpts.modelID, "model", "", "Model id")
	f.StringVar(&recommendOpts.items, "items", "", "Comma-separated seed item ids")
	f.StringVar(&recommendOpts.userID, "user", "", "User id whose stored history is added to the seeds")
	f.IntVarP(&recommendOpts.k, "count", "k", 10, "Number of recommendations")
	f.StringVar(&recommendOpts.overrides.blobRoot, "blob-root", "", "Read the model from this local directory")

	_ = recommendCmd.MarkFlagRequired("model")
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Score a session against a trained model",
	Long: `Return the top-k items for a set of seed items and/or a user's stored history.

Examples:
  sarec recommend --model shop-v2 --items sku-1,sku-7 -k 5
  sarec recommend --model shop-v2 --user u-42`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

// seedEvents converts a comma-separated item list to input events.
func seedEvents(items string) []recommend.InputEvent {
	var out []recommend.InputEvent
	for _, id := range strings.Split(items, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, recommend.InputEvent{ItemID: id})
		}
	}
	return out
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, recommendOpts.overrides)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	models := storage.NewModelCache(a.models, a.cfg.Serving.ModelTTL)
	defer models.Close()
	engines := recommend.NewEngineCache(a.cfg.Serving.EngineTTL)
	defer engines.Close()
	rec := recommend.NewRecommender(models, history.NewReader(a.historyTables()), engines, a.logger)

	out, err := rec.Recommend(ctx, recommendOpts.modelID, recommend.Request{
		Events: seedEvents(recommendOpts.items),
		UserID: recommendOpts.userID,
		K:      recommendOpts.k,
	})
	if err != nil {
		return fail(err)
	}
	return outputJSON(out)
}
