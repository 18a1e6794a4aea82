// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package mutation runs dashboard writes and invalidates the reads they
// affect.
//
// A Mutation declares the operations it invalidates. On success every
// cached entry of those operations is marked stale (observed ones refetch)
// and a cache.invalidated event is published. On failure nothing in the
// cache changes and the cause is returned wrapped in *Error.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

// Invalidator is the part of the query client a mutation needs.
type Invalidator interface {
	Invalidate(operations ...string) int
}

// Error is returned when the write itself failed.
type Error struct {
	Mutation string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mutation %s failed: %v", e.Mutation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures New.
type Options struct {
	// Name labels logs, metrics and events.
	Name string

	// Invalidates lists the operations marked stale after success.
	Invalidates []string

	// Publisher receives cache.invalidated events. Defaults to events.Discard.
	Publisher events.Publisher
}

// Mutation wraps a write function of input V and output R.
type Mutation[V, R any] struct {
	client    Invalidator
	fn        func(context.Context, V) (R, error)
	name      string
	edges     []string
	publisher events.Publisher

	pending atomic.Int32

	cbMu      sync.RWMutex
	onSuccess []func(V, R)
	onError   []func(V, error)
}

// New creates a mutation.
func New[V, R any](client Invalidator, fn func(context.Context, V) (R, error), opts Options) *Mutation[V, R] {
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	edges := make([]string, len(opts.Invalidates))
	copy(edges, opts.Invalidates)
	return &Mutation[V, R]{
		client:    client,
		fn:        fn,
		name:      opts.Name,
		edges:     edges,
		publisher: opts.Publisher,
	}
}

// Name returns the mutation's name.
func (m *Mutation[V, R]) Name() string { return m.name }

// Invalidates returns the operations this mutation marks stale.
func (m *Mutation[V, R]) Invalidates() []string {
	out := make([]string, len(m.edges))
	copy(out, m.edges)
	return out
}

// IsPending reports whether any call to Mutate is in progress.
func (m *Mutation[V, R]) IsPending() bool {
	return m.pending.Load() > 0
}

// OnSuccess registers a callback run after invalidation on every success.
func (m *Mutation[V, R]) OnSuccess(fn func(V, R)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onSuccess = append(m.onSuccess, fn)
}

// OnError registers a callback run on every failure.
func (m *Mutation[V, R]) OnError(fn func(V, error)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onError = append(m.onError, fn)
}

// Mutate runs the write. Concurrent calls are allowed and each invalidates
// independently on success.
func (m *Mutation[V, R]) Mutate(ctx context.Context, v V) (R, error) {
	m.pending.Add(1)
	defer m.pending.Add(-1)

	log := logging.Ctx(ctx).With().Str("mutation", m.name).Logger()

	result, err := m.fn(ctx, v)
	metrics.RecordMutation(m.name, err)
	if err != nil {
		log.Warn().Err(err).Msg("Mutation failed")
		merr := &Error{Mutation: m.name, Err: err}
		m.cbMu.RLock()
		callbacks := m.onError
		m.cbMu.RUnlock()
		for _, cb := range callbacks {
			cb(v, merr)
		}
		var zero R
		return zero, merr
	}

	var marked int
	if len(m.edges) > 0 {
		marked = m.client.Invalidate(m.edges...)
		ev := events.CacheInvalidated{Mutation: m.name, Operations: m.Invalidates(), Entries: marked}
		if perr := m.publisher.PublishCacheInvalidated(ctx, ev); perr != nil && !errors.Is(perr, events.ErrBusClosed) {
			log.Warn().Err(perr).Msg("Failed to publish cache invalidation")
		}
	}
	log.Debug().Strs("invalidates", m.edges).Int("entries", marked).Msg("Mutation succeeded")

	m.cbMu.RLock()
	callbacks := m.onSuccess
	m.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(v, result)
	}
	return result, nil
}
