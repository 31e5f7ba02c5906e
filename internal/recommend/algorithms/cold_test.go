// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package algorithms

import (
	"context"
	"math"
	"testing"

	"github.com/tomtom215/sarec/internal/recommend"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"red", []string{"red"}},
		{"red;blue; red", []string{"blue", "red"}},
		{" ; ", nil},
	}
	for _, tt := range tests {
		got := tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestTokenJaccard(t *testing.T) {
	if got := tokenJaccard([]string{"a", "b"}, []string{"b", "c"}); math.Abs(got-1.0/3) > 1e-12 {
		t.Errorf("tokenJaccard = %v, want 1/3", got)
	}
	if got := tokenJaccard(nil, []string{"a"}); got != 0 {
		t.Errorf("tokenJaccard(nil) = %v", got)
	}
}

// coldFixture: items 1-4 are warm, linked in two genre clusters
// (1,2 rock; 3,4 jazz). Item 5 is a cold rock item, item 6 a cold jazz item.
func coldFixture() Input {
	var usage []recommend.UsageEvent
	user := uint32(1)
	for i := 0; i < 4; i++ {
		usage = append(usage, ev(user, 1, 0), ev(user, 2, 0))
		user++
		usage = append(usage, ev(user, 3, 0), ev(user, 4, 0))
		user++
	}
	catalog := []recommend.CatalogItem{
		{ItemID: 1, Features: []string{"rock", "blue"}},
		{ItemID: 2, Features: []string{"rock", "red"}},
		{ItemID: 3, Features: []string{"jazz", "blue"}},
		{ItemID: 4, Features: []string{"jazz", "red"}},
		{ItemID: 5, Features: []string{"rock", "green"}},
		{ItemID: 6, Features: []string{"jazz", "green"}},
	}
	return Input{Usage: usage, ItemCount: 6, Catalog: catalog, FeatureNames: []string{"genre", "color"}}
}

func TestTrain_ColdItemPlacement(t *testing.T) {
	tr := newTestTrainer(Config{SupportThreshold: 2, EnableColdItemPlacement: true})
	model, stats, err := tr.Train(context.Background(), coldFixture())
	if err != nil {
		t.Fatal(err)
	}

	if stats.ColdItems != 2 {
		t.Errorf("ColdItems = %d, want 2", stats.ColdItems)
	}
	if len(model.FeatureWeights) != 2 || model.FeatureWeights[0].Name != "genre" {
		t.Fatalf("FeatureWeights = %+v", model.FeatureWeights)
	}
	// Genre separates the clusters; color does not.
	if model.FeatureWeights[0].Weight <= model.FeatureWeights[1].Weight {
		t.Errorf("genre weight %v should exceed color weight %v", model.FeatureWeights[0].Weight, model.FeatureWeights[1].Weight)
	}

	if s := model.Similarity(5, 1); s <= 0 {
		t.Errorf("cold rock item not linked to rock item, sim=%v", s)
	}
	if model.Similarity(5, 1) <= model.Similarity(5, 3) {
		t.Errorf("cold rock item closer to jazz: rock=%v jazz=%v", model.Similarity(5, 1), model.Similarity(5, 3))
	}
	if model.Similarity(5, 6) != 0 {
		t.Error("cold-to-cold pair created without being enabled")
	}

	// Usage-derived edges are untouched.
	if model.Similarity(1, 2) != 1 || model.Cooccurrence(1, 2) != 4 {
		t.Errorf("usage pair changed: sim=%v count=%d", model.Similarity(1, 2), model.Cooccurrence(1, 2))
	}
	for i := 1; i < len(model.Pairs); i++ {
		a, b := model.Pairs[i-1], model.Pairs[i]
		if a.A > b.A || (a.A == b.A && a.B >= b.B) {
			t.Fatalf("pairs not sorted at %d: %+v %+v", i, a, b)
		}
	}
}

func TestTrain_ColdToCold(t *testing.T) {
	in := coldFixture()
	in.Catalog[5] = recommend.CatalogItem{ItemID: 6, Features: []string{"rock", "green"}}
	tr := newTestTrainer(Config{SupportThreshold: 2, EnableColdItemPlacement: true, EnableColdToColdRecommendations: true})
	model, _, err := tr.Train(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if model.Similarity(5, 6) <= 0 {
		t.Error("cold-to-cold pair sharing genre missing")
	}
}

func TestTrain_ColdPlacementDisabled(t *testing.T) {
	model, stats, err := newTestTrainer(Config{SupportThreshold: 2}).Train(context.Background(), coldFixture())
	if err != nil {
		t.Fatal(err)
	}
	if stats.ColdPairs != 0 || model.Similarity(5, 1) != 0 || model.FeatureWeights != nil {
		t.Errorf("cold placement ran while disabled: %+v", stats)
	}
}
