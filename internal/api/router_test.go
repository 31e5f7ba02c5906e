// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/jobs"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs []*jobs.TrainingJob
	err  error
}

func (f *fakeJobs) Submit(_ context.Context, job *jobs.TrainingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeRecommender struct {
	evicted []string
	last    recommend.Request
}

func (f *fakeRecommender) Recommend(_ context.Context, modelID string, req recommend.Request) ([]recommend.Recommendation, error) {
	f.last = req
	if modelID != "m1" {
		return nil, fmt.Errorf("load model %s: %w", modelID, recommend.ErrModelNotFound)
	}
	out := make([]recommend.Recommendation, 0, req.K)
	for i := 0; i < req.K; i++ {
		out = append(out, recommend.Recommendation{ItemID: fmt.Sprintf("item-%d", i), Score: float64(req.K - i)})
	}
	return out, nil
}

func (f *fakeRecommender) EvictModel(modelID string) {
	f.evicted = append(f.evicted, modelID)
}

type fakeModels struct {
	deleted []string
}

func (f *fakeModels) Delete(_ context.Context, modelID string) error {
	f.deleted = append(f.deleted, modelID)
	return nil
}

type testServer struct {
	handler  http.Handler
	registry *registry.BadgerRegistry
	jobs     *fakeJobs
	rec      *fakeRecommender
	models   *fakeModels
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.NewBadgerRegistry(db)
	statuses := registry.NewStatusCache(reg, 0)
	t.Cleanup(statuses.Close)

	ts := &testServer{registry: reg, jobs: &fakeJobs{}, rec: &fakeRecommender{}, models: &fakeModels{}}
	ts.handler = NewRouter(NewHandler(Dependencies{
		Registry:    reg,
		Statuses:    statuses,
		Recommender: ts.rec,
		Jobs:        ts.jobs,
		Models:      ts.models,
		Defaults:    training.DefaultParameters(),
	}))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("/healthz = %d, success=%v", rec.Code, resp.Success)
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Error("correlation id header not set")
	}

	rec, _ = ts.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", rec.Code)
	}
}

func TestHealthReady_NotReady(t *testing.T) {
	h := NewRouter(NewHandler(Dependencies{
		Ready: func(context.Context) error { return errors.New("database closed") },
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestSubmitTraining(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/v1/models",
		`{"model_id":"m1","parameters":{"usage_path":"usage/2024.csv","support_threshold":2}}`)
	if rec.Code != http.StatusAccepted || !resp.Success {
		t.Fatalf("submit = %d %+v", rec.Code, resp.Error)
	}
	if len(ts.jobs.jobs) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(ts.jobs.jobs))
	}
	job := ts.jobs.jobs[0]
	if job.ModelID != "m1" || job.Parameters.SupportThreshold != 2 {
		t.Errorf("job = %+v", job)
	}
	if job.Parameters.SimilarityFunction != recommend.SimilarityJaccard {
		t.Errorf("default similarity not applied: %q", job.Parameters.SimilarityFunction)
	}

	got, err := ts.registry.Get(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != registry.StatusCreated {
		t.Errorf("record status = %s, want Created", got.Status)
	}

	rec, _ = ts.do(t, http.MethodPost, "/v1/models", `{"model_id":"m1","parameters":{"usage_path":"u.csv"}}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate submit = %d, want 409", rec.Code)
	}
}

func TestSubmitTraining_ExplicitZeroOverridesDefaults(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/v1/models",
		`{"model_id":"nodecay","parameters":{"usage_path":"u.csv","decay_period_in_days":0,"enable_backfilling":false}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d (%s)", rec.Code, rec.Body.String())
	}
	rec, _ = ts.do(t, http.MethodPost, "/v1/models", `{"model_id":"defaults","parameters":{"usage_path":"u.csv"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d (%s)", rec.Code, rec.Body.String())
	}
	if len(ts.jobs.jobs) != 2 {
		t.Fatalf("queued %d jobs, want 2", len(ts.jobs.jobs))
	}

	explicit, omitted := ts.jobs.jobs[0].Parameters, ts.jobs.jobs[1].Parameters
	if explicit.DecayPeriodInDays != 0 || explicit.EnableBackfilling {
		t.Errorf("explicit params = decay %d backfill %v, want 0 false", explicit.DecayPeriodInDays, explicit.EnableBackfilling)
	}
	defaults := training.DefaultParameters()
	if omitted.DecayPeriodInDays != defaults.DecayPeriodInDays || omitted.EnableBackfilling != defaults.EnableBackfilling {
		t.Errorf("omitted params = decay %d backfill %v, want defaults", omitted.DecayPeriodInDays, omitted.EnableBackfilling)
	}
}

func TestSubmitTraining_Rejects(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"model_id":`},
		{"missing usage path", `{"model_id":"m2","parameters":{}}`},
		{"absolute usage path", `{"model_id":"m2","parameters":{"usage_path":"/etc/passwd"}}`},
		{"bad model id", `{"model_id":"has space","parameters":{"usage_path":"u.csv"}}`},
		{"bad similarity", `{"model_id":"m2","parameters":{"usage_path":"u.csv","similarity_function":"Cosine"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := ts.do(t, http.MethodPost, "/v1/models", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp.Success || resp.Error == nil {
				t.Errorf("response = %+v, want error", resp)
			}
		})
	}
	if len(ts.jobs.jobs) != 0 {
		t.Errorf("queued %d jobs for rejected requests", len(ts.jobs.jobs))
	}
}

func TestSubmitTraining_QueueFailureMarksFailed(t *testing.T) {
	ts := newTestServer(t)
	ts.jobs.err = errors.New("broker down")

	rec, _ := ts.do(t, http.MethodPost, "/v1/models", `{"model_id":"m3","parameters":{"usage_path":"u.csv"}}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	got, err := ts.registry.Get(context.Background(), "m3")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != registry.StatusFailed {
		t.Errorf("status = %s, want Failed", got.Status)
	}
}

func TestGetStatusAndModel(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if err := ts.registry.Create(ctx, registry.ModelRecord{ID: "m1", Status: registry.StatusInProgress}); err != nil {
		t.Fatal(err)
	}

	rec, resp := ts.do(t, http.MethodGet, "/v1/models/m1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["status"] != string(registry.StatusInProgress) {
		t.Errorf("status = %v, want InProgress", data["status"])
	}

	rec, _ = ts.do(t, http.MethodGet, "/v1/models/m1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("get model = %d", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodGet, "/v1/models/nope/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d, want 404", rec.Code)
	}
}

func TestRecommend(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/v1/models/m1/recommendations", `{"events":[{"item_id":"a"}],"k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("recommend = %d", rec.Code)
	}
	if items := resp.Data.([]interface{}); len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}

	rec, _ = ts.do(t, http.MethodPost, "/v1/models/other/recommendations", `{"k":3}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown model = %d, want 404", rec.Code)
	}
}

func TestRecommend_NamedEventTypes(t *testing.T) {
	ts := newTestServer(t)

	body := `{"events":[{"item_id":"a","event_type":"Purchase"},{"item_id":"b","event_type":"RemoveShopCart","weight":0},{"item_id":"c","event_type":2}],"k":1}`
	rec, _ := ts.do(t, http.MethodPost, "/v1/models/m1/recommendations", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("recommend = %d (%s)", rec.Code, rec.Body.String())
	}
	events := ts.rec.last.Events
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].EventType != recommend.EventPurchase || events[0].EventType.DefaultWeight() != 4 || events[0].Weight != nil {
		t.Errorf("event a = %+v, want Purchase with default weight 4", events[0])
	}
	if events[1].EventType != recommend.EventRemoveFromCart || events[1].Weight == nil || *events[1].Weight != 0 {
		t.Errorf("event b = %+v, want RemoveFromCart with explicit zero weight", events[1])
	}
	if events[2].EventType != recommend.EventRecommendationClick {
		t.Errorf("event c type = %v, want RecommendationClick", events[2].EventType)
	}

	rec, _ = ts.do(t, http.MethodPost, "/v1/models/m1/recommendations", `{"events":[{"item_id":"a","event_type":"Refund"}],"k":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown event type = %d, want 400", rec.Code)
	}
}

func TestDeleteModel(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if err := ts.registry.Create(ctx, registry.ModelRecord{ID: "busy", Status: registry.StatusInProgress}); err != nil {
		t.Fatal(err)
	}
	if err := ts.registry.Create(ctx, registry.ModelRecord{ID: "done", Status: registry.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	rec, _ := ts.do(t, http.MethodDelete, "/v1/models/busy", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete in-progress = %d, want 409", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodDelete, "/v1/models/done", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", rec.Code)
	}
	if len(ts.models.deleted) != 1 || ts.models.deleted[0] != "done" {
		t.Errorf("deleted artifacts = %v", ts.models.deleted)
	}
	if len(ts.rec.evicted) != 1 {
		t.Errorf("evicted engines = %v", ts.rec.evicted)
	}
	if _, err := ts.registry.Get(ctx, "done"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}
}
