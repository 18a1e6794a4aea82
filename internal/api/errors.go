// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"context"
	"errors"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dashline/internal/backend"
	"github.com/tomtom215/dashline/internal/dashboard"
	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/query"
	"github.com/tomtom215/dashline/internal/validation"
)

// errorResponse maps an error from the layers below to status, code,
// message and details.
func errorResponse(err error) (int, string, string, any) {
	var verr *validation.RequestValidationError
	var herr *backend.HTTPError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrCodeValidation, verr.Error(), verr.Details()
	case errors.Is(err, dashboard.ErrUnknownOperation):
		return http.StatusNotFound, ErrCodeNotFound, err.Error(), nil
	case errors.Is(err, query.ErrConfiguration), errors.Is(err, filter.ErrUnknownPreset):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil
	case errors.Is(err, dashboard.ErrVaultUnavailable), errors.Is(err, query.ErrClientClosed):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error(), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Backend temporarily unavailable", nil
	case errors.As(err, &herr):
		return http.StatusBadGateway, ErrCodeBackend, "Backend request failed", map[string]any{"upstream_status": herr.Status}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout, "Request timed out", nil
	case errors.Is(err, backend.ErrResponseTooLarge):
		return http.StatusBadGateway, ErrCodeBackend, "Backend response too large", nil
	}
	return http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := errorResponse(err)
	log := logging.Ctx(r.Context())
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("code", code).Str("path", sanitizeLogValue(r.URL.Path)).Msg("API error")
	respondError(w, r, status, code, message, details)
}
