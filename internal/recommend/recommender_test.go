// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeModels struct {
	models map[string]*TrainedModel
	calls  int
}

func (f *fakeModels) Model(_ context.Context, id string) (*TrainedModel, error) {
	f.calls++
	m, ok := f.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	return m, nil
}

type fakeHistory struct {
	events map[string][]UsageEvent
	calls  int
}

func (f *fakeHistory) Read(_ context.Context, _, userID string, _ int) ([]UsageEvent, error) {
	f.calls++
	return f.events[userID], nil
}

func newTestRecommender(props Properties) (*Recommender, *fakeModels, *fakeHistory) {
	models := &fakeModels{models: map[string]*TrainedModel{"m": testModel(props)}}
	hist := &fakeHistory{events: map[string][]UsageEvent{
		"u1": {{ItemID: 4, Weight: 1, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}}
	r := NewRecommender(models, hist, NewEngineCache(time.Hour), zerolog.New(io.Discard))
	return r, models, hist
}

func TestRecommender_NonPositiveKTouchesNothing(t *testing.T) {
	r, models, hist := newTestRecommender(Properties{IsUserToItemSupported: true})
	for _, k := range []int{0, -3} {
		got, err := r.Recommend(context.Background(), "m", Request{Events: []InputEvent{{ItemID: "A"}}, UserID: "u1", K: k})
		if err != nil || len(got) != 0 {
			t.Errorf("Recommend(k=%d) = %v,%v", k, got, err)
		}
	}
	if models.calls != 0 || hist.calls != 0 {
		t.Errorf("storage touched: models=%d history=%d", models.calls, hist.calls)
	}
}

func TestRecommender_MapsIDsAndTruncates(t *testing.T) {
	r, _, _ := newTestRecommender(Properties{})
	got, err := r.Recommend(context.Background(), "m", Request{
		Events: []InputEvent{{ItemID: "A"}, {ItemID: "unknown"}},
		K:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemID != "B" {
		t.Errorf("Recommend() = %+v, want [B]", got)
	}
}

func TestRecommender_AppendsUserHistory(t *testing.T) {
	r, _, hist := newTestRecommender(Properties{IsUserToItemSupported: true})
	got, err := r.Recommend(context.Background(), "m", Request{UserID: "u1", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if hist.calls != 1 {
		t.Errorf("history calls = %d, want 1", hist.calls)
	}
	if len(got) != 1 || got[0].ItemID != "E" {
		t.Errorf("Recommend() = %+v, want [E]", got)
	}
}

func TestRecommender_IgnoresHistoryWhenUnsupported(t *testing.T) {
	r, _, hist := newTestRecommender(Properties{})
	if _, err := r.Recommend(context.Background(), "m", Request{UserID: "u1", K: 3}); err != nil {
		t.Fatal(err)
	}
	if hist.calls != 0 {
		t.Errorf("history read %d times for unsupported model", hist.calls)
	}
}

func TestRecommender_UnknownModel(t *testing.T) {
	r, _, _ := newTestRecommender(Properties{})
	_, err := r.Recommend(context.Background(), "missing", Request{K: 3})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestRecommender_ResolveEventWeights(t *testing.T) {
	r, _, _ := newTestRecommender(Properties{})
	zero, explicit := float32(0), float32(2.5)
	in := []InputEvent{
		{ItemID: "A"},
		{ItemID: "B", EventType: EventPurchase},
		{ItemID: "C", EventType: EventPurchase, Weight: &zero},
		{ItemID: "D", EventType: EventRemoveFromCart, Weight: &explicit},
	}
	events, _ := r.resolveEvents(testModel(Properties{}), in)
	want := []float32{1, 4, 0, 2.5}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Weight != want[i] {
			t.Errorf("event %s weight = %v, want %v", in[i].ItemID, ev.Weight, want[i])
		}
	}
}
