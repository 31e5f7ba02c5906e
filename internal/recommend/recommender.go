// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/metrics"
)

// ErrModelNotFound is returned when a model id has no stored artifact.
var ErrModelNotFound = errors.New("model not found")

// ModelProvider loads trained models by id.
type ModelProvider interface {
	Model(ctx context.Context, modelID string) (*TrainedModel, error)
}

// HistoryReader fetches a user's stored events. A user without history
// yields an empty slice and a nil error.
type HistoryReader interface {
	Read(ctx context.Context, modelID, userID string, userCount int) ([]UsageEvent, error)
}

// InputEvent is one session event as supplied by a caller. EventType is
// sent by name ("Purchase") or numeric code. A nil Weight falls back to the
// event type default; an explicit zero is kept.
type InputEvent struct {
	ItemID    string    `json:"item_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	EventType EventType `json:"event_type,omitempty"`
	Weight    *float32  `json:"weight,omitempty"`
}

// Request is a recommendation query.
type Request struct {
	Events []InputEvent `json:"events"`
	UserID string       `json:"user_id,omitempty"`
	K      int          `json:"k"`
}

// Recommendation is one ranked result with its catalog string id.
type Recommendation struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Recommender answers recommendation queries against stored models.
type Recommender struct {
	models  ModelProvider
	history HistoryReader
	engines *EngineCache
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRecommender creates a recommender. history may be nil when no model
// supports personalization.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRecommender(models ModelProvider, history HistoryReader, engines *EngineCache, logger zerolog.Logger) *Recommender {
	if engines == nil {
		engines = NewEngineCache(DefaultEngineTTL)
	}
	return &Recommender{
		models:  models,
		history: history,
		engines: engines,
		logger:  logger.With().Str("component", "scorer").Logger(),
		now:     time.Now,
	}
}

// Recommend returns at most req.K recommendations for the session in req.
// K <= 0 returns an empty list without touching storage.
func (r *Recommender) Recommend(ctx context.Context, modelID string, req Request) ([]Recommendation, error) {
	if req.K <= 0 {
		return []Recommendation{}, nil
	}
	start := time.Now()
	defer func() { metrics.RecommendDuration.Observe(time.Since(start).Seconds()) }()

	ctx = logging.ContextWithModelID(ctx, modelID)
	model, err := r.models.Model(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelID, err)
	}

	events, latest := r.resolveEvents(model, req.Events)

	if req.UserID != "" && model.Properties.IsUserToItemSupported && r.history != nil {
		stored, err := r.history.Read(ctx, modelID, req.UserID, model.Properties.UniqueUsersCount)
		if err != nil {
			return nil, fmt.Errorf("read history for user %s: %w", req.UserID, err)
		}
		for _, ev := range stored {
			if ev.Timestamp.After(latest) {
				latest = ev.Timestamp
			}
		}
		events = append(events, stored...)
	}

	engine := r.engines.Engine(model, NewEngineKey(modelID, model, req.K, latest))
	scored, err := engine.Predict(ctx, events)
	if err != nil {
		return nil, err
	}
	if len(scored) > req.K {
		scored = scored[:req.K]
	}

	out := make([]Recommendation, 0, len(scored))
	for _, s := range scored {
		key, ok := model.ItemKey(s.ItemID)
		if !ok {
			continue
		}
		out = append(out, Recommendation{ItemID: key, Score: s.Score})
	}

	r.logger.Debug().
		Str("model_id", modelID).
		Int("seeds", len(events)).
		Int("k", req.K).
		Int("returned", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Scored recommendations")
	return out, nil
}

// resolveEvents maps input events to dense ids, dropping unknown items.
// Missing timestamps default to now and nil weights to the event type default.
func (r *Recommender) resolveEvents(model *TrainedModel, in []InputEvent) ([]UsageEvent, time.Time) {
	now := r.now()
	var latest time.Time
	events := make([]UsageEvent, 0, len(in))
	for _, ev := range in {
		id, ok := model.ItemID(ev.ItemID)
		if !ok {
			continue
		}
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = now
		}
		w := ev.EventType.DefaultWeight()
		if ev.Weight != nil {
			w = *ev.Weight
		}
		if ts.After(latest) {
			latest = ts
		}
		events = append(events, UsageEvent{ItemID: id, Timestamp: ts.UTC(), Weight: w})
	}
	return events, latest
}

// EvictModel drops cached engines for modelID.
func (r *Recommender) EvictModel(modelID string) {
	n := r.engines.Evict(modelID)
	r.logger.Debug().Str("model_id", modelID).Int("engines", n).Msg("Evicted scoring engines")
}
