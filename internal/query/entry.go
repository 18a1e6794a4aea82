// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package query

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusPending means no fetch has completed yet.
	StatusPending Status = iota
	// StatusSuccess means the last fetch succeeded.
	StatusSuccess
	// StatusError means the last fetch failed. Data from an earlier
	// success, if any, is kept.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is a read-only snapshot of one entry as seen by one reader.
type Result struct {
	Data       any       `json:"data"`
	Err        error     `json:"-"`
	Status     Status    `json:"status"`
	FetchedAt  time.Time `json:"fetched_at"`
	StaleAt    time.Time `json:"stale_at"`
	IsStale    bool      `json:"is_stale"`
	IsFetching bool      `json:"is_fetching"`
}

// entry is the cache record for one key. All fields are guarded by
// Client.mu.
type entry struct {
	key Key

	data      any
	err       error
	status    Status
	fetchedAt time.Time

	// gen is incremented under Client.mu on every fetch start; appliedGen
	// is the newest generation whose result was applied.
	gen        uint64
	appliedGen uint64
	fetching   int

	// The newest flight. While flightActive it is registered in the
	// singleflight group under flightKey.
	flightGen    uint64
	flightKey    string
	flightActive bool

	invalidated    bool
	invalidatedGen uint64
	invalidatedAt  time.Time

	observers     []*Observer
	inactiveEpoch uint64

	pollInterval time.Duration
	pollCancel   context.CancelFunc
}

func (e *entry) isStale(now time.Time, staleTime time.Duration) bool {
	if e.fetchedAt.IsZero() || e.invalidated {
		return true
	}
	return now.Sub(e.fetchedAt) >= staleTime
}

func (e *entry) snapshot(now time.Time, staleTime time.Duration) Result {
	r := Result{
		Data:       e.data,
		Err:        e.err,
		Status:     e.status,
		FetchedAt:  e.fetchedAt,
		IsStale:    e.isStale(now, staleTime),
		IsFetching: e.fetching > 0,
	}
	switch {
	case e.invalidated:
		r.StaleAt = e.invalidatedAt
	case !e.fetchedAt.IsZero():
		r.StaleAt = e.fetchedAt.Add(staleTime)
	}
	return r
}

// leadObserver is the observer whose fetcher and options drive refetches
// not started by a specific reader (polling and invalidation).
func (e *entry) leadObserver() *Observer {
	for _, o := range e.observers {
		if !o.opts.Disabled {
			return o
		}
	}
	return nil
}

func (e *entry) stopPoll() {
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	e.pollInterval = 0
}

// EntryInfo describes one entry for diagnostics.
type EntryInfo struct {
	Key         string    `json:"key"`
	Operation   string    `json:"operation"`
	Params      string    `json:"params"`
	Status      Status    `json:"status"`
	FetchedAt   time.Time `json:"fetched_at"`
	Observers   int       `json:"observers"`
	IsFetching  bool      `json:"is_fetching"`
	Invalidated bool      `json:"invalidated"`
	Polling     string    `json:"polling,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Entries returns a snapshot of every entry.
func (c *Client) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, len(c.entries))
	for key, e := range c.entries {
		info := EntryInfo{
			Key:         key.String(),
			Operation:   key.Operation,
			Params:      key.Params,
			Status:      e.status,
			FetchedAt:   e.fetchedAt,
			Observers:   len(e.observers),
			IsFetching:  e.fetching > 0,
			Invalidated: e.invalidated,
		}
		if e.pollInterval > 0 {
			info.Polling = e.pollInterval.String()
		}
		if e.err != nil {
			info.LastError = e.err.Error()
		}
		out = append(out, info)
	}
	return out
}

// Stats are cumulative client counters plus current sizes.
type Stats struct {
	Entries       int    `json:"entries"`
	Observers     int    `json:"observers"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Fetches       uint64 `json:"fetches"`
	Errors        uint64 `json:"errors"`
	DedupJoins    uint64 `json:"dedup_joins"`
	Discarded     uint64 `json:"discarded"`
	Invalidations uint64 `json:"invalidations"`
	Removals      uint64 `json:"removals"`
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		s.Observers += len(e.observers)
	}
	c.mu.Unlock()

	s.Hits = c.stats.hits.Load()
	s.Misses = c.stats.misses.Load()
	s.Fetches = c.stats.fetches.Load()
	s.Errors = c.stats.errors.Load()
	s.DedupJoins = c.stats.dedupJoins.Load()
	s.Discarded = c.stats.discarded.Load()
	s.Invalidations = c.stats.invalidations.Load()
	s.Removals = c.stats.removals.Load()
	return s
}
