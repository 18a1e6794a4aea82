// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package api serves the dashboard data layer over HTTP: reads, writes,
// the shared date-range filter, cache diagnostics and a WebSocket feed of
// changes.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/dashboard"
	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/query"
	"github.com/tomtom215/dashline/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ReadinessCheck is one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerDeps are the handler's collaborators.
type HandlerDeps struct {
	Dashboard *dashboard.Service
	Filter    *filter.Store
	Cache     *query.Client

	// WebSocket serves /api/v1/ws. Nil disables the endpoint.
	WebSocket http.Handler

	Checks []ReadinessCheck

	// ReadyTimeout bounds all readiness checks together. Default 2s.
	ReadyTimeout time.Duration
}

// Handler holds the HTTP handlers.
type Handler struct {
	dashboard    *dashboard.Service
	filter       *filter.Store
	cache        *query.Client
	ws           http.Handler
	checks       []ReadinessCheck
	readyTimeout time.Duration
	startTime    time.Time
}

// NewHandler creates the handlers.
func NewHandler(d HandlerDeps) *Handler {
	if d.ReadyTimeout <= 0 {
		d.ReadyTimeout = 2 * time.Second
	}
	return &Handler{
		dashboard:    d.Dashboard,
		filter:       d.Filter,
		cache:        d.Cache,
		ws:           d.WebSocket,
		checks:       d.Checks,
		readyTimeout: d.ReadyTimeout,
		startTime:    time.Now(),
	}
}

var errEmptyBody = errors.New("request body is required")

// decodeJSON reads a bounded JSON body into v and validates it. Unknown
// fields are rejected. When optional is set an empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return validateBody(v)
			}
			return errEmptyBody
		}
		return err
	}
	return validateBody(v)
}

func validateBody(v any) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// respondDecodeErr reports a body that could not be decoded or validated.
func respondDecodeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		respondErr(w, r, err)
		return
	}
	respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body: "+err.Error(), nil)
}
