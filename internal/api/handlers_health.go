// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/dashline/internal/logging"
)

// HealthLive reports that the process is up. It checks no dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

type checkResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TookMS int64  `json:"took_ms"`
}

// HealthReady runs every readiness check concurrently and returns 503 if
// any fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	results := make([]checkResult, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func(i int, c ReadinessCheck) {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			results[i] = checkResult{Name: c.Name, OK: err == nil, TookMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	ready := true
	for _, res := range results {
		if !res.OK {
			ready = false
			logging.Ctx(r.Context()).Warn().Str("check", res.Name).Str("error", res.Error).Msg("Readiness check failed")
		}
	}

	body := map[string]any{"ready": ready, "checks": results}
	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Status:   "error",
			Data:     body,
			Metadata: Metadata{Timestamp: time.Now().UTC(), RequestID: logging.RequestIDFromContext(r.Context())},
			Error:    &APIError{Code: ErrCodeServiceUnavailable, Message: "Service not ready"},
		})
		return
	}
	respondData(w, r, http.StatusOK, body)
}
