// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// testModel builds a model over items A..E:
//
//	A-B 0.9, A-C 0.4, B-C 0.6, D-E 0.2; popularity E, D, A, B, C.
func testModel(props Properties) *TrainedModel {
	return &TrainedModel{
		Properties: props,
		Items:      []string{"A", "B", "C", "D", "E"},
		Similarity: &SimilarityModel{
			Function:    SimilarityJaccard,
			ItemCount:   5,
			Pairs:       []Pair{{1, 2, 9, 0.9}, {1, 3, 4, 0.4}, {2, 3, 6, 0.6}, {4, 5, 2, 0.2}},
			Occurrences: []uint32{0, 10, 9, 8, 11, 12},
			Popular:     []uint32{5, 4, 1, 2, 3},
		},
	}
}

func TestRoundCount(t *testing.T) {
	tests := []struct{ in, want int }{
		{1, 5}, {5, 5}, {6, 10}, {10, 10}, {11, 20}, {25, 30}, {100, 100},
	}
	for _, tt := range tests {
		if got := RoundCount(tt.in); got != tt.want {
			t.Errorf("RoundCount(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNextMidnight(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 1, 13, 45, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := NextMidnight(tt.in); !got.Equal(tt.want) {
			t.Errorf("NextMidnight(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewEngineKey_SameDayCallsShareKey(t *testing.T) {
	model := testModel(Properties{ReferenceDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	k1 := NewEngineKey("m", model, 3, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	k2 := NewEngineKey("m", model, 4, time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC))
	if k1 != k2 {
		t.Errorf("keys differ: %v vs %v", k1, k2)
	}

	// A stale event falls back to the model's reference date.
	k3 := NewEngineKey("m", model, 3, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if !k3.ReferenceDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ReferenceDate = %v", k3.ReferenceDate)
	}
}

func TestEngine_Predict(t *testing.T) {
	model := testModel(Properties{})
	key := EngineKey{Count: 5}
	e := NewEngine(model, key)

	got, err := e.Predict(context.Background(), []UsageEvent{{ItemID: 1, Weight: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ItemID != 2 || got[1].ItemID != 3 {
		t.Fatalf("Predict() = %+v, want [B C]", got)
	}
	if got[0].Score != 0.9 || got[1].Score != 0.4 {
		t.Errorf("scores = %v,%v", got[0].Score, got[1].Score)
	}
}

func TestEngine_ExcludesSeedsUnlessIncludeHistory(t *testing.T) {
	model := testModel(Properties{})
	seeds := []UsageEvent{{ItemID: 1, Weight: 1}, {ItemID: 2, Weight: 1}}

	excl, _ := NewEngine(model, EngineKey{Count: 5}).Predict(context.Background(), seeds)
	for _, r := range excl {
		if r.ItemID == 1 || r.ItemID == 2 {
			t.Errorf("seed %d returned without include-history", r.ItemID)
		}
	}

	incl, _ := NewEngine(model, EngineKey{Count: 5, IncludeHistory: true}).Predict(context.Background(), seeds)
	found := map[uint32]bool{}
	for _, r := range incl {
		found[r.ItemID] = true
	}
	if !found[1] || !found[2] {
		t.Errorf("include-history result %+v missing seeds", incl)
	}
}

func TestEngine_BackfillStrictPopularityOrder(t *testing.T) {
	model := testModel(Properties{EnableBackfilling: true})
	got, err := NewEngine(model, EngineKey{Count: 5}).Predict(context.Background(), []UsageEvent{{ItemID: 1, Weight: 1}})
	if err != nil {
		t.Fatal(err)
	}

	// B, C from similarity; then E, D by popularity. A is a seed.
	want := []uint32{2, 3, 5, 4}
	if len(got) != len(want) {
		t.Fatalf("Predict() = %+v, want ids %v", got, want)
	}
	seen := map[uint32]bool{}
	for i, r := range got {
		if r.ItemID != want[i] {
			t.Errorf("position %d = %d, want %d", i, r.ItemID, want[i])
		}
		if seen[r.ItemID] {
			t.Errorf("duplicate item %d", r.ItemID)
		}
		seen[r.ItemID] = true
	}
}

func TestEngine_AffinityDecay(t *testing.T) {
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	model := testModel(Properties{EnableUserAffinity: true})
	e := NewEngine(model, EngineKey{Count: 5, ReferenceDate: ref, Decay: 24 * time.Hour})

	// D is two half-lives old with weight 4, so its affinity is 1.
	got, err := e.Predict(context.Background(), []UsageEvent{
		{ItemID: 4, Weight: 4, Timestamp: ref.Add(-48 * time.Hour)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemID != 5 {
		t.Fatalf("Predict() = %+v", got)
	}
	if math.Abs(got[0].Score-0.2) > 1e-9 {
		t.Errorf("score = %v, want 0.2", got[0].Score)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(testModel(Properties{}), EngineKey{Count: 5}).Predict(ctx, []UsageEvent{{ItemID: 1, Weight: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEngineCache_ReusesAndEvicts(t *testing.T) {
	c := NewEngineCache(time.Hour)
	defer c.Close()
	model := testModel(Properties{})

	k := EngineKey{ModelID: "m1", Count: 10}
	e1 := c.Engine(model, k)
	e2 := c.Engine(model, k)
	if e1 != e2 {
		t.Error("same key produced different engines")
	}
	if e3 := c.Engine(model, EngineKey{ModelID: "m1", Count: 20}); e3 == e1 {
		t.Error("different key reused engine")
	}
	c.Engine(model, EngineKey{ModelID: "m2", Count: 10})

	if n := c.Evict("m1"); n != 2 {
		t.Errorf("Evict(m1) = %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestEngine_ConcurrentPredictDeterministic(t *testing.T) {
	e := NewEngine(testModel(Properties{EnableBackfilling: true}), EngineKey{Count: 5})
	seeds := []UsageEvent{{ItemID: 1, Weight: 1}}
	want, _ := e.Predict(context.Background(), seeds)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Predict(context.Background(), seeds)
			if err != nil || len(got) != len(want) {
				errs <- "length mismatch"
				return
			}
			for j := range got {
				if got[j] != want[j] {
					errs <- "order mismatch"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}
