// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/logging"
)

// FilterResponse is the shared date range as returned by the API.
type FilterResponse struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Days     int       `json:"days"`
	Inverted bool      `json:"inverted,omitempty"`
}

func filterResponse(rng filter.Range) FilterResponse {
	return FilterResponse{From: rng.From, To: rng.To, Days: rng.Days(), Inverted: rng.Inverted()}
}

// FilterRequest sets an explicit range. From after To is accepted.
type FilterRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required"`
}

// PresetRequest selects a trailing window.
type PresetRequest struct {
	Days int `json:"days" validate:"required,preset"`
}

// GetFilter returns the current date range.
func (h *Handler) GetFilter(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, filterResponse(h.filter.Range()))
}

// PutFilter replaces the date range.
func (h *Handler) PutFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	h.applyFilter(w, r, h.filter.SetRange(filter.Range{From: req.From, To: req.To}))
}

// PostPreset sets the range to the last 7, 30 or 90 days.
func (h *Handler) PostPreset(w http.ResponseWriter, r *http.Request) {
	var req PresetRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	err := h.filter.SetPreset(filter.Preset(req.Days))
	if errors.Is(err, filter.ErrUnknownPreset) {
		respondErr(w, r, err)
		return
	}
	h.applyFilter(w, r, err)
}

// applyFilter responds with the new range. A persistence failure does not
// undo the change, so it is logged and reported as a warning header.
func (h *Handler) applyFilter(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Date range applied but not persisted")
		w.Header().Set("Warning", `199 dashline "date range not persisted"`)
	}
	respondData(w, r, http.StatusOK, filterResponse(h.filter.Range()))
}
