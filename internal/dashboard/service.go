// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package dashboard defines the dashboard's named reads and writes on top
// of the query cache.
//
// Every read is keyed on the shared date range plus its own parameters, so
// changing the range moves readers to new keys instead of invalidating old
// ones. Writes are mutations that invalidate the reads they affect.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/dashline/internal/backend"
	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/query"
)

var (
	// ErrUnknownOperation is returned for a read name not in the catalog.
	ErrUnknownOperation = errors.New("unknown dashboard operation")

	// ErrInvalidParam is returned for a request parameter the operation
	// does not accept. It also matches query.ErrConfiguration.
	ErrInvalidParam = fmt.Errorf("%w: invalid parameter", query.ErrConfiguration)
)

// Deps are the collaborators of a Service.
type Deps struct {
	Backend backend.Backend
	Client  *query.Client
	Filter  *filter.Store

	// Vault encrypts integration credentials. Without it the
	// save-integration-credentials mutation fails with ErrVaultUnavailable.
	Vault *config.CredentialVault

	// Publisher receives cache.invalidated events. Defaults to events.Discard.
	Publisher events.Publisher

	// Catalog defaults to DefaultOperations without overrides.
	Catalog Catalog
}

// Service serves dashboard reads and writes.
type Service struct {
	backend   backend.Backend
	client    *query.Client
	filter    *filter.Store
	catalog   Catalog
	mutations *Mutations
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Publisher == nil {
		d.Publisher = events.Discard{}
	}
	if d.Catalog == nil {
		d.Catalog = NewCatalog(DefaultOperations(), nil)
	}
	s := &Service{
		backend: d.Backend,
		client:  d.Client,
		filter:  d.Filter,
		catalog: d.Catalog,
	}
	s.mutations = newMutations(d.Client, d.Backend, d.Vault, d.Publisher)
	return s
}

// Catalog returns the operations served.
func (s *Service) Catalog() Catalog { return s.catalog }

// Mutations returns the dashboard writes.
func (s *Service) Mutations() *Mutations { return s.mutations }

// Operation looks up a read by name.
func (s *Service) Operation(name string) (Operation, error) {
	op, ok := s.catalog[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op, nil
}

// Key returns the cache key a read of name with params would use under the
// current date range.
func (s *Service) Key(name string, params map[string]string) (query.Key, error) {
	op, err := s.Operation(name)
	if err != nil {
		return query.Key{}, err
	}
	if err := checkParams(op, params); err != nil {
		return query.Key{}, err
	}
	return buildKey(op, s.filter.Range(), params)
}

// Read returns the data of one operation under the current date range,
// fetching when the cached data is missing or stale. On a failed fetch the
// Result still carries the last good data.
func (s *Service) Read(ctx context.Context, name string, params map[string]string) (query.Result, error) {
	op, err := s.Operation(name)
	if err != nil {
		return query.Result{}, err
	}
	if err := checkParams(op, params); err != nil {
		return query.Result{}, err
	}
	rng := s.filter.Range()
	key, err := buildKey(op, rng, params)
	if err != nil {
		return query.Result{}, err
	}
	return s.client.Fetch(ctx, key, s.fetcher(op, rng, params), op.Options())
}

// Refresh fetches one operation regardless of staleness.
func (s *Service) Refresh(ctx context.Context, name string, params map[string]string) (query.Result, error) {
	op, err := s.Operation(name)
	if err != nil {
		return query.Result{}, err
	}
	if err := checkParams(op, params); err != nil {
		return query.Result{}, err
	}
	rng := s.filter.Range()
	key, err := buildKey(op, rng, params)
	if err != nil {
		return query.Result{}, err
	}
	// Disabled so opening the observer does not start a second fetch.
	opts := op.Options()
	opts.Disabled = true
	o := s.client.Observe(key, s.fetcher(op, rng, params), opts)
	defer o.Close()
	return o.Refetch(ctx)
}

func checkParams(op Operation, params map[string]string) error {
	for name := range params {
		if !op.accepts(name) {
			return fmt.Errorf("%w: %s does not accept %q", ErrInvalidParam, op.Name, name)
		}
	}
	return nil
}

func buildKey(op Operation, rng filter.Range, params map[string]string) (query.Key, error) {
	kp := rng.Params()
	for name, v := range params {
		kp[name] = v
	}
	return query.BuildKey(op.Name, kp)
}

// fetcher captures rng so a fetch started under one range never returns
// rows for another.
func (s *Service) fetcher(op Operation, rng filter.Range, params map[string]string) query.Fetcher {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	if op.Function != "" {
		body := make(map[string]any, len(params)+2)
		for k, v := range rng.Params() {
			body[k] = v
		}
		for _, name := range names {
			body[name] = params[name]
		}
		return func(ctx context.Context) (any, error) {
			return s.backend.Invoke(ctx, op.Function, body)
		}
	}

	q := op.tableQuery()
	if op.DateColumn != "" {
		q = q.Where(op.DateColumn, backend.OpGte, rng.From).
			Where(op.DateColumn, backend.OpLte, rng.To)
	}
	for _, name := range names {
		q = q.Where(name, backend.OpEq, params[name])
	}
	return func(ctx context.Context) (any, error) {
		return s.backend.Query(ctx, q)
	}
}
