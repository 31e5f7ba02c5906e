// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package algorithms

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/sarec/internal/recommend"
)

// Config contains configuration for the similarity trainer.
type Config struct {
	// SupportThreshold is the minimum co-occurrence count for a pair to be kept.
	SupportThreshold int

	// Unit selects how usage events are grouped into sessions.
	Unit recommend.CooccurrenceUnit

	// Function selects the similarity score.
	Function recommend.SimilarityFunction

	// EnableColdItemPlacement derives feature-based edges for cold catalog items.
	EnableColdItemPlacement bool

	// EnableColdToColdRecommendations also links cold items to each other.
	EnableColdToColdRecommendations bool

	// Workers bounds counting parallelism. Default: GOMAXPROCS.
	Workers int
}

// Input is everything the trainer consumes.
type Input struct {
	// Usage must be ordered by SortBySessionUnit. Unsorted input is sorted in place.
	Usage []recommend.UsageEvent

	// ItemCount is the highest dense item id.
	ItemCount int

	// Catalog is optional; Features slots line up with FeatureNames.
	Catalog      []recommend.CatalogItem
	FeatureNames []string
}

// Stats describes one training run.
type Stats struct {
	Sessions   int           `json:"sessions"`
	Users      int           `json:"users"`
	RawPairs   int           `json:"raw_pairs"`
	KeptPairs  int           `json:"kept_pairs"`
	ColdItems  int           `json:"cold_items"`
	ColdPairs  int           `json:"cold_pairs"`
	CountTime  time.Duration `json:"count_time"`
	ScoreTime  time.Duration `json:"score_time"`
	ColdTime   time.Duration `json:"cold_time"`
	TotalTime  time.Duration `json:"total_time"`
	WorkerUsed int           `json:"workers"`
}

// Trainer builds SimilarityModels from usage.
type Trainer struct {
	cfg    Config
	logger zerolog.Logger
}

// NewTrainer creates a trainer, applying defaults for unset fields.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewTrainer(cfg Config, logger zerolog.Logger) *Trainer {
	if cfg.SupportThreshold < 1 {
		cfg.SupportThreshold = 3
	}
	if !cfg.Unit.Valid() {
		cfg.Unit = recommend.UnitUser
	}
	if !cfg.Function.Valid() {
		cfg.Function = recommend.SimilarityJaccard
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Trainer{
		cfg:    cfg,
		logger: logger.With().Str("component", "trainer").Logger(),
	}
}

// Train builds the similarity model for in.
func (t *Trainer) Train(ctx context.Context, in Input) (*recommend.SimilarityModel, Stats, error) {
	start := time.Now()
	var stats Stats

	if in.ItemCount < 0 {
		return nil, stats, fmt.Errorf("invalid item count %d", in.ItemCount)
	}
	if !sort.SliceIsSorted(in.Usage, func(i, j int) bool { return sessionLess(&in.Usage[i], &in.Usage[j]) }) {
		SortBySessionUnit(in.Usage)
	}

	sessions := splitSessions(in.Usage, t.cfg.Unit)
	stats.Sessions = len(sessions)
	stats.Users = CountUsers(in.Usage)

	countStart := time.Now()
	counts, occ, err := t.count(ctx, in.Usage, sessions, in.ItemCount)
	if err != nil {
		return nil, stats, err
	}
	stats.CountTime = time.Since(countStart)
	stats.RawPairs = len(counts)
	stats.WorkerUsed = t.workersFor(len(sessions))

	scoreStart := time.Now()
	pairs, err := t.score(ctx, counts, occ)
	if err != nil {
		return nil, stats, err
	}
	stats.ScoreTime = time.Since(scoreStart)
	stats.KeptPairs = len(pairs)

	model := &recommend.SimilarityModel{
		Function:    t.cfg.Function,
		ItemCount:   in.ItemCount,
		Pairs:       pairs,
		Occurrences: occ,
		Popular:     rankPopularity(occ),
	}

	if t.cfg.EnableColdItemPlacement && len(in.Catalog) > 0 && len(in.FeatureNames) > 0 {
		coldStart := time.Now()
		coldItems, coldPairs, err := t.placeColdItems(ctx, model, in.Catalog, in.FeatureNames)
		if err != nil {
			return nil, stats, err
		}
		stats.ColdItems = coldItems
		stats.ColdPairs = coldPairs
		stats.ColdTime = time.Since(coldStart)
	}

	stats.TotalTime = time.Since(start)
	t.logger.Info().
		Str("function", string(t.cfg.Function)).
		Str("unit", string(t.cfg.Unit)).
		Int("support_threshold", t.cfg.SupportThreshold).
		Int("items", in.ItemCount).
		Int("sessions", stats.Sessions).
		Int("raw_pairs", stats.RawPairs).
		Int("kept_pairs", stats.KeptPairs).
		Int("cold_pairs", stats.ColdPairs).
		Dur("duration", stats.TotalTime).
		Msg("Similarity model trained")

	return model, stats, nil
}

func (t *Trainer) workersFor(sessions int) int {
	w := t.cfg.Workers
	if sessions < w {
		w = sessions
	}
	if w < 1 {
		w = 1
	}
	return w
}

// pairKey packs a canonical pair (a < b) into one map key.
func pairKey(a, b uint32) uint64 {
	return uint64(a)<<32 | uint64(b)
}

func unpackPair(k uint64) (uint32, uint32) {
	return uint32(k >> 32), uint32(k)
}

// shard is one worker's private counters.
type shard struct {
	pairs map[uint64]uint32
	occ   []uint32
}

// count accumulates pair and item occurrence counts across sessions.
// Session i is handled by worker i % workers; shards are merged afterwards.
func (t *Trainer) count(ctx context.Context, events []recommend.UsageEvent, sessions []span, itemCount int) (map[uint64]uint32, []uint32, error) {
	workers := t.workersFor(len(sessions))
	shards := make([]shard, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			sh := shard{pairs: make(map[uint64]uint32), occ: make([]uint32, itemCount+1)}
			var buf []uint32
			for i, n := w, 0; i < len(sessions); i, n = i+workers, n+1 {
				if n%1024 == 0 && ContextCancelled(gctx) {
					return gctx.Err()
				}
				s := sessions[i]
				buf = distinctItems(events[s.start:s.end], buf)
				for x, a := range buf {
					if int(a) > itemCount {
						return fmt.Errorf("item id %d exceeds item count %d", a, itemCount)
					}
					sh.occ[a]++
					for _, b := range buf[x+1:] {
						sh.pairs[pairKey(a, b)]++
					}
				}
			}
			shards[w] = sh
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := shards[0]
	for _, sh := range shards[1:] {
		if ContextCancelled(ctx) {
			return nil, nil, ctx.Err()
		}
		for k, c := range sh.pairs {
			merged.pairs[k] += c
		}
		for id, c := range sh.occ {
			merged.occ[id] += c
		}
	}
	return merged.pairs, merged.occ, nil
}

// score applies the support threshold and the similarity function,
// returning pairs sorted by (A, B).
func (t *Trainer) score(ctx context.Context, counts map[uint64]uint32, occ []uint32) ([]recommend.Pair, error) {
	threshold := uint32(t.cfg.SupportThreshold)
	pairs := make([]recommend.Pair, 0, len(counts)/2+1)
	n := 0
	for k, c := range counts {
		n++
		if n%65536 == 0 && ContextCancelled(ctx) {
			return nil, ctx.Err()
		}
		if c < threshold {
			continue
		}
		a, b := unpackPair(k)
		s := Similarity(t.cfg.Function, c, occ[a], occ[b])
		if s <= 0 {
			continue
		}
		pairs = append(pairs, recommend.Pair{A: a, B: b, Count: c, Score: s})
	}
	sortPairs(pairs)
	return pairs, nil
}

// Similarity computes one pair score from its co-occurrence count and the
// occurrence counts of both items.
func Similarity(fn recommend.SimilarityFunction, cij, ci, cj uint32) float64 {
	if cij == 0 {
		return 0
	}
	switch fn {
	case recommend.SimilarityCooccurrence:
		return float64(cij)
	case recommend.SimilarityLift:
		denom := float64(ci) * float64(cj)
		if denom == 0 {
			return 0
		}
		return float64(cij) / denom
	default:
		denom := float64(ci) + float64(cj) - float64(cij)
		if denom <= 0 {
			return 0
		}
		return float64(cij) / denom
	}
}

func sortPairs(pairs []recommend.Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
}
