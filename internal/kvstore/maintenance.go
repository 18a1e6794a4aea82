// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/dashline/internal/logging"
)

// DefaultGCInterval is how often GCService reclaims value log space.
const DefaultGCInterval = 10 * time.Minute

// gcDiscardRatio is the fraction of stale data a value log file needs
// before badger rewrites it.
const gcDiscardRatio = 0.5

// Ping reports whether the store is open and readable.
func (s *Store) Ping() error {
	_, err := s.Get("health:ping")
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RunValueLogGC rewrites value log files until badger reports nothing left
// to reclaim. In-memory stores have no value log and return immediately.
func (s *Store) RunValueLogGC() (int, error) {
	if s.opts.InMemory {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	rewritten := 0
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return rewritten, nil
		}
		if err != nil {
			return rewritten, err
		}
		rewritten++
	}
}

// GCService runs RunValueLogGC on an interval under a supervisor.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates the service. A non-positive interval uses
// DefaultGCInterval.
func NewGCService(store *Store, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := g.store.RunValueLogGC()
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if err != nil {
				logging.Warn().Err(err).Msg("Value log GC failed")
				continue
			}
			if n > 0 {
				logging.Debug().Int("files", n).Msg("Value log GC reclaimed space")
			}
		}
	}
}

func (g *GCService) String() string { return "kvstore-gc" }
