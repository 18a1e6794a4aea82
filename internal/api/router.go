// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/dashline/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	slowRequest   time.Duration
}

// NewRouter creates a router. A nil mw uses the default middleware config.
func NewRouter(handler *Handler, mw *ChiMiddleware, slowRequest time.Duration) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, slowRequest: slowRequest}
}

// Setup builds the HTTP handler.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog(router.slowRequest))
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.Route("/health", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		if h.ws != nil {
			r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).Handle("/ws", h.ws)
		}

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitDashboard))
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Get("/filter", h.GetFilter)
			r.Get("/dashboard", h.ListOperations)
			r.Get("/dashboard/{operation}", h.DashboardRead)
			r.Get("/cache/stats", h.CacheStats)
			r.Get("/cache/entries", h.CacheEntries)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Put("/filter", h.PutFilter)
			r.Post("/filter/preset", h.PostPreset)
			r.Post("/leads/{id}/status", h.UpdateLeadStatus)
			r.Post("/calls/{id}/analyze", h.AnalyzeCall)
			r.Post("/integrations/credentials", h.SaveIntegrationCredentials)
			r.Post("/ai-usage", h.RecordAIUsage)
			r.Post("/cache/invalidate", h.CacheInvalidate)
		})
	})

	return r
}
