// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package supervisor runs Dashline's long-lived services under a suture
// supervisor tree.
//
// The tree has three layers so a crash in one does not take down the others:
//
//	dashline (root)
//	├── data-layer       kvstore value log GC
//	├── messaging-layer  WebSocket hub, event relay
//	└── api-layer        HTTP server
//
// Supervisor events are logged through sutureslog on the slog adapter of
// the zerolog logger.
package supervisor
