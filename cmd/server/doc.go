// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

/*
Package main is the entry point for the Dashline server.

Dashline sits between an operations dashboard and a managed
backend-as-a-service. It caches dashboard reads per operation and date
range, deduplicates concurrent fetches, invalidates reads after writes, and
keeps the shared date-range filter in BadgerDB so it survives restarts.

# Process Layout

	dashline (root supervisor)
	├── data-layer
	│   └── kvstore-gc
	├── messaging-layer
	│   ├── websocket-hub
	│   └── event-relay
	└── api-layer
	    └── http-server

# Configuration

Defaults, then an optional YAML file (CONFIG_PATH or ./config.yaml),
then environment variables:

	BACKEND_URL=https://project.example.co   # required
	BACKEND_ANON_KEY=<key>                   # required
	HTTP_PORT=8787
	STORE_PATH=/data/dashline                # or STORE_IN_MEMORY=true
	QUERY_STALE_TIME=5m
	QUERY_RETRY=1
	FILTER_DEFAULT_DAYS=30                   # 7, 30 or 90
	CREDENTIAL_SECRET=<32+ chars>            # enables credential storage
	CORS_ORIGINS=https://dash.example.com
	LOG_LEVEL=info
	LOG_FORMAT=json

Per-operation staleness, polling and retry overrides live under
query.operations in the YAML file. Operations with a poll interval are
watched from startup and each refreshed result is pushed to WebSocket
clients as a dashboard.updated message.

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains, the hub
closes every WebSocket, the live watches stop polling, and the query
client cancels in-flight fetches before the store is closed.
*/
package main
