// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package dashboard

import (
	"sync"
	"time"

	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/query"
)

// MessageTypeLiveUpdate is the broadcast type of a LiveUpdate.
const MessageTypeLiveUpdate = "dashboard.updated"

// Broadcaster fans a typed payload out to connected clients.
type Broadcaster interface {
	BroadcastJSON(messageType string, data any)
}

// LiveUpdate carries a settled result of a polled operation.
type LiveUpdate struct {
	Operation string       `json:"operation"`
	Key       string       `json:"key"`
	Status    query.Status `json:"status"`
	Data      any          `json:"data,omitempty"`
	Error     string       `json:"error,omitempty"`
	FetchedAt time.Time    `json:"fetched_at"`
	Stale     bool         `json:"stale"`
}

// LiveWatches keeps every live operation watched for the process lifetime.
type LiveWatches struct {
	watches []*Watch
}

// WatchLive opens a watch on each operation with a poll interval and relays
// its settled results to b. Polling runs as long as the watches are open.
func (s *Service) WatchLive(b Broadcaster) (*LiveWatches, error) {
	lw := &LiveWatches{}
	for _, name := range s.catalog.Names() {
		op := s.catalog[name]
		if !op.Live() {
			continue
		}
		w, err := s.Watch(name, nil)
		if err != nil {
			lw.Close()
			return nil, err
		}
		w.Subscribe(newLiveRelay(w, b).forward)
		lw.watches = append(lw.watches, w)
		logging.Debug().
			Str("operation", name).
			Dur("poll_interval", op.PollInterval).
			Msg("Live operation watched")
	}
	return lw, nil
}

// Len returns the number of open watches.
func (lw *LiveWatches) Len() int { return len(lw.watches) }

// Close closes every watch.
func (lw *LiveWatches) Close() {
	for _, w := range lw.watches {
		w.Close()
	}
	lw.watches = nil
}

type liveRelay struct {
	w *Watch
	b Broadcaster

	mu   sync.Mutex
	last LiveUpdate
	sent bool
}

func newLiveRelay(w *Watch, b Broadcaster) *liveRelay {
	return &liveRelay{w: w, b: b}
}

// forward skips in-flight and pending snapshots and repeats of the last
// update sent.
func (r *liveRelay) forward(res query.Result) {
	if res.IsFetching || res.Status == query.StatusPending {
		return
	}
	up := LiveUpdate{
		Operation: r.w.Operation().Name,
		Key:       r.w.Key().String(),
		Status:    res.Status,
		Data:      res.Data,
		FetchedAt: res.FetchedAt,
		Stale:     res.IsStale,
	}
	if res.Err != nil {
		up.Error = res.Err.Error()
	}

	r.mu.Lock()
	if r.sent && r.last.Key == up.Key && r.last.Status == up.Status &&
		r.last.FetchedAt.Equal(up.FetchedAt) && r.last.Error == up.Error {
		r.mu.Unlock()
		return
	}
	r.last, r.sent = up, true
	r.mu.Unlock()

	r.b.BroadcastJSON(MessageTypeLiveUpdate, up)
}
