// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/jobs"
	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
	"github.com/tomtom215/sarec/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// StatusReader answers model status lookups.
type StatusReader interface {
	Status(ctx context.Context, id string) (registry.StatusEntry, error)
	Invalidate(id string)
}

// Recommender scores recommendation requests.
type Recommender interface {
	Recommend(ctx context.Context, modelID string, req recommend.Request) ([]recommend.Recommendation, error)
	EvictModel(modelID string)
}

// JobSubmitter queues training jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, job *jobs.TrainingJob) error
}

// ModelDeleter removes a stored model artifact and any cached copy.
type ModelDeleter interface {
	Delete(ctx context.Context, modelID string) error
}

// Dependencies are the collaborators behind the ops API. Nil collaborators
// disable the routes that need them.
type Dependencies struct {
	Registry    registry.Store
	Statuses    StatusReader
	Recommender Recommender
	Jobs        JobSubmitter
	Models      ModelDeleter
	History     history.TableFunc

	// Defaults fill training parameters a submission leaves unset.
	Defaults training.Parameters

	// Ready reports whether the service can take traffic. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler serves the ops API.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports whether dependencies are reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(r.Context()); err != nil {
			respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
			return
		}
	}
	respondOK(w, r, http.StatusOK, map[string]bool{"ready": true})
}

// TrainRequest submits a training run.
type TrainRequest struct {
	// ModelID is optional; a UUID is assigned when empty.
	ModelID     string              `json:"model_id,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  training.Parameters `json:"parameters"`
}

// SubmitTraining creates a model record and queues its training job.
// The body is decoded over the configured defaults, so omitted parameters
// keep them and explicit zero values (decay_period_in_days: 0) are honored.
func (h *Handler) SubmitTraining(w http.ResponseWriter, r *http.Request) {
	req := TrainRequest{Parameters: h.deps.Defaults}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ModelID == "" {
		req.ModelID = uuid.NewString()
	}
	if !validation.ValidModelID(req.ModelID) {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "invalid model id")
		return
	}
	params := req.Parameters.WithDefaults()
	if err := params.Validate(); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	ctx := logging.ContextWithModelID(r.Context(), req.ModelID)
	err := h.deps.Registry.Create(ctx, registry.ModelRecord{
		ID:          req.ModelID,
		Description: req.Description,
		Status:      registry.StatusCreated,
		Parameters:  params,
	})
	if errors.Is(err, registry.ErrExists) {
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "model already exists")
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to create model record")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to create model")
		return
	}

	job := &jobs.TrainingJob{ModelID: req.ModelID, Description: req.Description, Parameters: params}
	if err := h.deps.Jobs.Submit(ctx, job); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to queue training job")
		if _, uerr := registry.SetStatus(ctx, h.deps.Registry, req.ModelID, registry.StatusFailed, "Failed to queue training job"); uerr != nil {
			logging.Ctx(ctx).Warn().Err(uerr).Msg("Failed to mark model as failed")
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "failed to queue training job")
		return
	}
	respondOK(w, r, http.StatusAccepted, map[string]string{
		"model_id": req.ModelID,
		"status":   string(registry.StatusCreated),
	})
}

// GetModel returns the full registry record.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.deps.Registry.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "model not found")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("model_id", id).Msg("Failed to read model record")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to read model")
		return
	}
	respondOK(w, r, http.StatusOK, rec)
}

// GetStatus returns a model's status, served from the status cache once terminal.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.deps.Statuses.Status(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "model not found")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("model_id", id).Msg("Failed to read model status")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to read status")
		return
	}
	respondOK(w, r, http.StatusOK, map[string]string{
		"model_id": id,
		"status":   string(st.Status),
		"message":  st.Message,
	})
}

// Recommend scores a session against a model.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req recommend.Request
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := logging.ContextWithModelID(r.Context(), id)
	recs, err := h.deps.Recommender.Recommend(ctx, id, req)
	switch {
	case errors.Is(err, recommend.ErrModelNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "model not found")
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Recommendation failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "recommendation failed")
	default:
		respondOK(w, r, http.StatusOK, recs)
	}
}

// DeleteModel removes a model's artifact, history table and registry record.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.ContextWithModelID(r.Context(), id)

	rec, err := h.deps.Registry.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "model not found")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to read model")
		return
	}
	if !rec.Status.Terminal() {
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "model is still training")
		return
	}

	if h.deps.Models != nil {
		if err := h.deps.Models.Delete(ctx, id); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to delete model artifact")
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete model artifact")
			return
		}
	}
	if h.deps.History != nil {
		if table, err := h.deps.History(id); err == nil {
			if err := table.DeleteIfExists(ctx); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("Failed to delete history table")
			}
		}
	}
	if h.deps.Recommender != nil {
		h.deps.Recommender.EvictModel(id)
	}
	if err := h.deps.Registry.Delete(ctx, id); err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete model")
		return
	}
	if h.deps.Statuses != nil {
		h.deps.Statuses.Invalidate(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
