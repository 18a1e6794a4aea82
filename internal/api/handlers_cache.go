// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"net/http"
	"sort"

	"github.com/tomtom215/dashline/internal/logging"
)

// InvalidateRequest names the operations to invalidate. An empty list
// invalidates everything.
type InvalidateRequest struct {
	Operations []string `json:"operations" validate:"omitempty,dive,required,identifier"`
}

// CacheStats returns the query cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.cache.Stats())
}

// CacheEntries lists cache entries sorted by operation then key.
func (h *Handler) CacheEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.cache.Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Operation != entries[j].Operation {
			return entries[i].Operation < entries[j].Operation
		}
		return entries[i].Key < entries[j].Key
	})
	respondData(w, r, http.StatusOK, entries)
}

// CacheInvalidate marks entries stale. Observed entries refetch at once.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	for _, op := range req.Operations {
		if _, err := h.dashboard.Operation(op); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	n := h.cache.Invalidate(req.Operations...)
	logging.Ctx(r.Context()).Info().Strs("operations", req.Operations).Int("entries", n).Msg("Cache invalidated via API")
	respondData(w, r, http.StatusOK, map[string]any{"invalidated": n})
}
