// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package backend

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

// CircuitBreakerBackend wraps a Backend with a circuit breaker so an
// unavailable backend fails fast instead of tying up every poller.
//
// Only transient failures count toward tripping. A 404 or a validation
// error means the backend is healthy.
type CircuitBreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewCircuitBreakerBackend wraps next using the breaker settings in cfg.
func NewCircuitBreakerBackend(next Backend, cfg *config.BackendConfig) *CircuitBreakerBackend {
	const name = "backend"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},

		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerBackend{next: next, cb: cb, name: name}
}

// Query implements Backend.
func (b *CircuitBreakerBackend) Query(ctx context.Context, q Query) ([]Row, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]Row)
	return rows, nil
}

// Invoke implements Backend.
func (b *CircuitBreakerBackend) Invoke(ctx context.Context, function string, body any) (json.RawMessage, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Invoke(ctx, function, body)
	})
	if err != nil {
		return nil, err
	}
	raw, _ := res.(json.RawMessage)
	return raw, nil
}

// State returns the breaker state as closed, half-open or open.
func (b *CircuitBreakerBackend) State() string {
	return stateToString(b.cb.State())
}

func (b *CircuitBreakerBackend) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).
			Set(float64(b.cb.Counts().ConsecutiveFailures))
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Compile-time interface checks.
var (
	_ Backend = (*HTTPClient)(nil)
	_ Backend = (*CircuitBreakerBackend)(nil)
)
