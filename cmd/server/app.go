// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tomtom215/dashline/internal/api"
	"github.com/tomtom215/dashline/internal/backend"
	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/dashboard"
	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/kvstore"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/query"
	ws "github.com/tomtom215/dashline/internal/websocket"
)

// app holds the wired components that outlive main's setup phase.
type app struct {
	handler http.Handler
	hub     *ws.Hub
	client  *query.Client
	live    *dashboard.LiveWatches
}

func newApp(cfg *config.Config, store *kvstore.Store, bus *events.Bus) (*app, error) {
	var vault *config.CredentialVault
	if cfg.Security.CredentialSecret != "" {
		v, err := config.NewCredentialVault(cfg.Security.CredentialSecret)
		if err != nil {
			return nil, fmt.Errorf("credential vault: %w", err)
		}
		vault = v
	} else {
		logging.Warn().Msg("CREDENTIAL_SECRET not set; integration credentials cannot be saved")
	}

	httpBackend := backend.NewHTTPClient(&cfg.Backend)
	var be backend.Backend = httpBackend
	var breaker *backend.CircuitBreakerBackend
	if cfg.Backend.BreakerEnabled {
		breaker = backend.NewCircuitBreakerBackend(httpBackend, &cfg.Backend)
		be = breaker
	}
	if err := httpBackend.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Backend not reachable at startup (reads will retry)")
	}

	filterStore := filter.New(store, filter.Options{
		DefaultPreset: filter.Preset(cfg.Filter.DefaultDays),
		Publisher:     bus,
	})

	client := query.New(query.Config{
		StaleTime:   cfg.Query.StaleTime,
		GCTime:      cfg.Query.GCTime,
		Retry:       cfg.Query.Retry,
		RetryDelay:  cfg.Query.RetryDelay,
		MaxInactive: cfg.Query.MaxInactive,
	})

	svc := dashboard.New(dashboard.Deps{
		Backend:   be,
		Client:    client,
		Filter:    filterStore,
		Vault:     vault,
		Publisher: bus,
		Catalog:   dashboard.NewCatalog(dashboard.DefaultOperations(), cfg.Query.Operations),
	})

	hub := ws.NewHub()

	live, err := svc.WatchLive(hub)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("live operations: %w", err)
	}

	checks := []api.ReadinessCheck{
		{Name: "store", Check: func(context.Context) error { return store.Ping() }},
		{Name: "backend", Check: httpBackend.Ping},
	}
	if breaker != nil {
		checks = append(checks, api.ReadinessCheck{Name: "circuit_breaker", Check: func(context.Context) error {
			if state := breaker.State(); state == "open" {
				return fmt.Errorf("circuit breaker is %s", state)
			}
			return nil
		}})
	}

	handler := api.NewHandler(api.HandlerDeps{
		Dashboard: svc,
		Filter:    filterStore,
		Cache:     client,
		WebSocket: ws.NewHandler(hub, cfg.Security.CORSOrigins),
		Checks:    checks,
	})

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled

	router := api.NewRouter(handler, api.NewChiMiddleware(mwConfig), 0)

	logging.Info().
		Int("operations", len(svc.Catalog())).
		Int("live_operations", live.Len()).
		Bool("credential_vault", vault != nil).
		Bool("circuit_breaker", breaker != nil).
		Int("date_range_days", filterStore.Range().Days()).
		Msg("Components initialized")

	return &app{handler: router.Setup(), hub: hub, client: client, live: live}, nil
}

func (a *app) close() {
	a.live.Close()
	a.client.Close()
}
