// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"context"
	"math"
	"sort"
	"time"
)

// ScoredItem is one ranked recommendation with a dense item id.
type ScoredItem struct {
	ItemID uint32  `json:"item_id"`
	Score  float64 `json:"score"`
}

// scorer holds the parameters of one scoring pass.
type scorer struct {
	model          *TrainedModel
	count          int
	includeHistory bool
	referenceDate  time.Time
	decay          time.Duration
}

// seedWeights computes the weight of every distinct seed item.
//
// With affinity enabled each event contributes weight * 0.5^(age/decay),
// where age is measured back from the reference date. Otherwise each distinct
// seed weighs 1.
func (s *scorer) seedWeights(events []UsageEvent) (map[uint32]float64, []uint32) {
	weights := make(map[uint32]float64, len(events))
	order := make([]uint32, 0, len(events))
	affinity := s.model.Properties.EnableUserAffinity

	for _, ev := range events {
		if ev.ItemID == 0 || int(ev.ItemID) > s.model.Similarity.ItemCount {
			continue
		}
		if _, seen := weights[ev.ItemID]; !seen {
			order = append(order, ev.ItemID)
			weights[ev.ItemID] = 0
		}
		if !affinity {
			weights[ev.ItemID] = 1
			continue
		}
		weights[ev.ItemID] += float64(ev.Weight) * decayFactor(s.referenceDate, ev.Timestamp, s.decay)
	}
	return weights, order
}

// decayFactor is 0.5 raised to the number of half-lives between ts and ref.
// Events newer than ref are not amplified.
func decayFactor(ref, ts time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || ts.IsZero() {
		return 1
	}
	age := ref.Sub(ts)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// score ranks every item reachable from the seeds. The result is bounded by
// s.count, has no duplicates and is ordered by score desc, item id asc.
func (s *scorer) score(ctx context.Context, events []UsageEvent) ([]ScoredItem, error) {
	weights, order := s.seedWeights(events)
	sim := s.model.Similarity

	scores := make(map[uint32]float64)
	for i, seed := range order {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		w := weights[seed]
		if w == 0 {
			continue
		}
		for _, n := range sim.Neighbors(seed) {
			scores[n.Item] += w * n.Score
		}
	}

	ranked := make([]ScoredItem, 0, len(scores))
	for item, sc := range scores {
		if sc <= 0 {
			continue
		}
		if !s.includeHistory {
			if _, isSeed := weights[item]; isSeed {
				continue
			}
		}
		ranked = append(ranked, ScoredItem{ItemID: item, Score: sc})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ItemID < ranked[j].ItemID
	})
	if len(ranked) > s.count {
		ranked = ranked[:s.count]
	}

	if s.model.Properties.EnableBackfilling && len(ranked) < s.count {
		ranked = s.backfill(ranked, weights)
	}
	return ranked, nil
}

// backfill pads ranked with the most popular items not yet chosen.
// Seeds stay excluded unless history is included.
func (s *scorer) backfill(ranked []ScoredItem, seeds map[uint32]float64) []ScoredItem {
	chosen := make(map[uint32]struct{}, len(ranked))
	for _, r := range ranked {
		chosen[r.ItemID] = struct{}{}
	}
	for _, item := range s.model.Similarity.Popular {
		if len(ranked) >= s.count {
			break
		}
		if _, ok := chosen[item]; ok {
			continue
		}
		if !s.includeHistory {
			if _, isSeed := seeds[item]; isSeed {
				continue
			}
		}
		chosen[item] = struct{}{}
		ranked = append(ranked, ScoredItem{ItemID: item, Score: 0})
	}
	return ranked
}
