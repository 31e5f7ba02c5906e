// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package evaluate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sarec/internal/recommend"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func pairModel() *recommend.TrainedModel {
	return &recommend.TrainedModel{
		Properties: recommend.Properties{ReferenceDate: t0},
		Items:      []string{"A", "B", "C", "D"},
		Similarity: &recommend.SimilarityModel{
			Function:    recommend.SimilarityJaccard,
			ItemCount:   4,
			Pairs:       []recommend.Pair{{A: 1, B: 2, Count: 3, Score: 0.9}, {A: 3, B: 4, Count: 2, Score: 0.8}},
			Occurrences: []uint32{0, 3, 3, 2, 2},
			Popular:     []uint32{1, 2, 3, 4},
		},
	}
}

func ev(user, item uint32) recommend.UsageEvent {
	return recommend.UsageEvent{UserID: user, ItemID: item, Timestamp: t0, Weight: 1}
}

func TestEvaluate_HeldOutIsTopOne(t *testing.T) {
	train := []recommend.UsageEvent{ev(1, 1), ev(2, 3)}
	eval := []recommend.UsageEvent{ev(1, 2), ev(2, 4), ev(3, 1)}

	res, err := New(Options{}, zerolog.Nop()).Evaluate(context.Background(), pairModel(), train, eval)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Precision) != DefaultK {
		t.Fatalf("precision cutoffs = %d, want %d", len(res.Precision), DefaultK)
	}
	for _, p := range res.Precision {
		if p.Percentage != 100 || p.UsersInTest != 2 {
			t.Errorf("precision@%d = %+v, want 100%% over 2 users", p.K, p)
		}
	}
	d := res.Diversity
	if d.TotalItemsRecommended != 2 || d.UniqueItemsRecommended != 2 || d.UniqueItemsInTrainingSet != 2 {
		t.Errorf("diversity = %+v", d)
	}
	if d.Buckets[0].Percentage != 100 {
		t.Errorf("buckets = %+v, want all recommendations in the lowest bucket", d.Buckets)
	}
}

func TestEvaluate_Misses(t *testing.T) {
	train := []recommend.UsageEvent{ev(1, 1), ev(2, 3)}
	eval := []recommend.UsageEvent{ev(1, 2), ev(2, 1)}

	res, err := New(Options{K: 2, Workers: 1}, zerolog.Nop()).Evaluate(context.Background(), pairModel(), train, eval)
	if err != nil {
		t.Fatal(err)
	}
	if res.Precision[0].Percentage != 50 {
		t.Errorf("precision@1 = %v, want 50", res.Precision[0].Percentage)
	}
}

func TestEvaluate_NoSharedUsers(t *testing.T) {
	res, err := New(Options{}, zerolog.Nop()).Evaluate(context.Background(), pairModel(),
		[]recommend.UsageEvent{ev(1, 1)}, []recommend.UsageEvent{ev(9, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Precision[0].UsersInTest != 0 || res.Precision[0].Percentage != 0 || res.Diversity.TotalItemsRecommended != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}, zerolog.Nop()).Evaluate(ctx, pairModel(),
		[]recommend.UsageEvent{ev(1, 1)}, []recommend.UsageEvent{ev(1, 2)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDiversity_PercentileBuckets(t *testing.T) {
	// Item i appears i times, so item i sits at percentile i-1.
	var train []recommend.UsageEvent
	for item := uint32(1); item <= 100; item++ {
		for n := uint32(0); n < item; n++ {
			train = append(train, ev(n+1, item))
		}
	}
	preds := [][]recommend.ScoredItem{
		{{ItemID: 100}, {ItemID: 95}},
		{{ItemID: 1}, {ItemID: 100}},
	}
	d := diversity(train, preds)
	want := []int{1, 1, 2}
	for i, b := range d.Buckets {
		if b.Count != want[i] {
			t.Errorf("bucket [%v,%v) count = %d, want %d", b.Min, b.Max, b.Count, want[i])
		}
	}
	if math.Abs(d.Buckets[2].Percentage-50) > 1e-9 {
		t.Errorf("top bucket = %v%%, want 50%%", d.Buckets[2].Percentage)
	}
	if d.UniqueItemsRecommended != 3 || d.TotalItemsRecommended != 4 || d.UniqueItemsInTrainingSet != 100 {
		t.Errorf("diversity = %+v", d)
	}
}
