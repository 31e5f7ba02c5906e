// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package api is the SARec ops HTTP surface, routed with chi.
//
//	GET    /healthz                           liveness
//	GET    /readyz                            readiness
//	GET    /metrics                           Prometheus metrics
//	POST   /v1/models                         queue a training run
//	GET    /v1/models/{id}                    registry record
//	GET    /v1/models/{id}/status             model status (terminal states cached)
//	POST   /v1/models/{id}/recommendations    score a session
//	DELETE /v1/models/{id}                    delete a finished model
//
// Routes whose collaborator is missing from Dependencies are not mounted.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestTimeout bounds every /v1 request.
const requestTimeout = 30 * time.Second

// NewRouter builds the ops router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(CorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.HealthLive)
	r.Get("/readyz", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/models", func(r chi.Router) {
		r.Use(RequestMetrics)
		r.Use(chimiddleware.Timeout(requestTimeout))

		if h.deps.Registry != nil && h.deps.Jobs != nil {
			r.Post("/", h.SubmitTraining)
		}
		if h.deps.Registry != nil {
			r.Get("/{id}", h.GetModel)
			r.Delete("/{id}", h.DeleteModel)
		}
		if h.deps.Statuses != nil {
			r.Get("/{id}/status", h.GetStatus)
		}
		if h.deps.Recommender != nil {
			r.Post("/{id}/recommendations", h.Recommend)
		}
	})
	return r
}
