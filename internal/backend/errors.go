// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrResponseTooLarge is returned when a response exceeds the configured
// body limit.
var ErrResponseTooLarge = errors.New("backend response exceeds size limit")

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Method string
	Target string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend %s %s: HTTP %d: %s", e.Method, e.Target, e.Status, e.Body)
}

// Permanent reports whether retrying cannot help: client errors other than
// request timeout and rate limiting.
func (e *HTTPError) Permanent() bool {
	if e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests {
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// permanentError marks local failures (bad query, oversized body) that no
// retry will fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
