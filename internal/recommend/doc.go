// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package recommend holds the trained item-similarity model and the scorer
// that turns a session of usage events into ranked recommendations.
//
// # Model
//
// A TrainedModel is immutable once produced. It carries:
//
//   - the SimilarityModel: sparse item pairs with raw co-occurrence counts and
//     similarity scores, per-item occurrence counts and a popularity ranking
//   - the reverse item index: position id-1 holds the catalog string id
//   - scoring Properties: decay, affinity and history flags, reference date
//
// # Scoring
//
// Scoring is performed by an Engine bound to one rounded parameter tuple
// (recommendation count, include-history flag, reference date, decay).
// Engines are cached with a sliding expiry by EngineCache so that calls
// issued within the same day share one instance. A single Engine serializes
// its Predict calls; distinct engines run in parallel.
//
// # Usage
//
//	rec := recommend.NewRecommender(models, histories, recommend.NewEngineCache(24*time.Hour), logger)
//	items, err := rec.Recommend(ctx, modelID, recommend.Request{
//	    Events: []recommend.InputEvent{{ItemID: "sku-1"}},
//	    UserID: "u-42",
//	    K:      10,
//	})
package recommend
