// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/query"
)

// refreshParam forces a fetch; it is not forwarded as a key parameter.
const refreshParam = "refresh"

// OperationInfo describes one read for GET /dashboard.
type OperationInfo struct {
	Name         string   `json:"name"`
	Source       string   `json:"source"`
	Params       []string `json:"params,omitempty"`
	StaleTime    string   `json:"stale_time"`
	PollInterval string   `json:"poll_interval,omitempty"`
}

// ListOperations lists the available reads.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	catalog := h.dashboard.Catalog()
	out := make([]OperationInfo, 0, len(catalog))
	for _, name := range catalog.Names() {
		op := catalog[name]
		info := OperationInfo{Name: op.Name, Params: op.Params, StaleTime: op.StaleTime.String()}
		if op.Function != "" {
			info.Source = "function:" + op.Function
		} else {
			info.Source = "table:" + op.Table
		}
		if op.Live() {
			info.PollInterval = op.PollInterval.String()
		}
		out = append(out, info)
	}
	respondData(w, r, http.StatusOK, out)
}

// DashboardRead serves one read under the current date range. Query
// parameters other than refresh become key parameters.
func (h *Handler) DashboardRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "operation")

	params := make(map[string]string)
	refresh := false
	for k, vs := range r.URL.Query() {
		if len(vs) == 0 {
			continue
		}
		if k == refreshParam {
			b, err := strconv.ParseBool(vs[0])
			if err != nil {
				respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
					"Invalid refresh value: must be a boolean", nil)
				return
			}
			refresh = b
			continue
		}
		params[k] = vs[0]
	}

	var (
		res query.Result
		err error
	)
	if refresh {
		res, err = h.dashboard.Refresh(r.Context(), name, params)
	} else {
		res, err = h.dashboard.Read(r.Context(), name, params)
	}

	if err != nil && res.Data == nil {
		respondErr(w, r, err)
		return
	}

	meta := Metadata{
		Timestamp:   time.Now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
		Cached:      !res.FetchedAt.IsZero() && res.FetchedAt.Before(start),
		Stale:       res.IsStale,
		RequestID:   logging.RequestIDFromContext(r.Context()),
	}
	if !res.FetchedAt.IsZero() {
		fetched := res.FetchedAt.UTC()
		meta.FetchedAt = &fetched
	}

	resp := &APIResponse{Status: "success", Data: res.Data, Metadata: meta}
	if err != nil {
		// Earlier data is still served; the failure rides along.
		_, code, message, details := errorResponse(err)
		resp.Error = &APIError{Code: code, Message: message, Details: details}
		resp.Metadata.Stale = true
		logging.Ctx(r.Context()).Warn().Err(err).Str("operation", name).Msg("Serving previous data after failed fetch")
	}
	respondJSON(w, http.StatusOK, resp)
}
