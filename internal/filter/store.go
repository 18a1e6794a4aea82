// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package filter holds the shared date-range selection every dashboard read
// is keyed on.
//
// There is one Store per process. It is loaded from the key-value store at
// start, written back on every change, and notifies subscribers
// synchronously in registration order. A missing or unreadable persisted
// value falls back to the default preset without surfacing an error.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/kvstore"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

// StorageKey is where the range is persisted.
const StorageKey = "filter:date_range"

// Preset is a named trailing window in days.
type Preset int

const (
	Preset7Days  Preset = 7
	Preset30Days Preset = 30
	Preset90Days Preset = 90
)

// DefaultPreset is used on first start and after corruption.
const DefaultPreset = Preset30Days

// ErrUnknownPreset is returned for presets other than 7, 30 and 90 days.
var ErrUnknownPreset = errors.New("unknown date range preset")

// Valid reports whether p is one of the supported presets.
func (p Preset) Valid() bool {
	switch p {
	case Preset7Days, Preset30Days, Preset90Days:
		return true
	}
	return false
}

// Days returns the window length.
func (p Preset) Days() int { return int(p) }

// KV is the persistence the store needs. *kvstore.Store satisfies it.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Options configures New.
type Options struct {
	// DefaultPreset overrides the 30-day fallback.
	DefaultPreset Preset

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Publisher receives filter.changed events. Defaults to events.Discard.
	Publisher events.Publisher
}

// Subscription is returned by Subscribe.
type Subscription struct {
	store *Store
	id    uint64
}

// Unsubscribe stops further notifications. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.store == nil {
		return
	}
	s.store.unsubscribe(s.id)
}

type subscriber struct {
	id uint64
	fn func(Range)
}

// Store is the persisted date-range filter.
type Store struct {
	kv            KV
	clock         func() time.Time
	publisher     events.Publisher
	defaultPreset Preset

	mu      sync.RWMutex
	current Range

	// notifyMu serializes change+notify so subscribers see changes in order.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     []subscriber
	nextID   uint64
}

// New loads the persisted range from kv, falling back to the default.
func New(kv KV, opts Options) *Store {
	s := &Store{
		kv:            kv,
		clock:         opts.Clock,
		publisher:     opts.Publisher,
		defaultPreset: opts.DefaultPreset,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.publisher == nil {
		s.publisher = events.Discard{}
	}
	if !s.defaultPreset.Valid() {
		s.defaultPreset = DefaultPreset
	}

	s.current = s.load()
	return s
}

func (s *Store) load() Range {
	fallback := s.presetRange(s.defaultPreset)

	data, err := s.kv.Get(StorageKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		logging.Debug().Int("days", s.defaultPreset.Days()).Msg("No persisted date range, using default")
		return fallback
	}
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to read persisted date range, using default")
		return fallback
	}

	var r Range
	if err := json.Unmarshal(data, &r); err != nil || r.From.IsZero() || r.To.IsZero() {
		logging.Warn().Err(err).Int("bytes", len(data)).Msg("Persisted date range is malformed, using default")
		return fallback
	}

	logging.Info().Time("from", r.From).Time("to", r.To).Msg("Loaded persisted date range")
	return r
}

func (s *Store) presetRange(p Preset) Range {
	now := s.clock()
	return Range{From: now.AddDate(0, 0, -p.Days()), To: now}
}

// Range returns the current selection.
func (s *Store) Range() Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetRange replaces the selection, persists it and notifies subscribers.
// From after To is accepted as given. A persistence error is returned after
// the in-memory change and notifications have been applied.
func (s *Store) SetRange(r Range) error {
	return s.set(r, "range")
}

// SetPreset sets the selection to the trailing window ending now.
func (s *Store) SetPreset(p Preset) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d days", ErrUnknownPreset, int(p))
	}
	return s.set(s.presetRange(p), "preset")
}

func (s *Store) set(r Range, source string) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	persistErr := s.persist(r)

	metrics.FilterChanges.WithLabelValues(source).Inc()
	logging.Debug().Str("source", source).Time("from", r.From).Time("to", r.To).Msg("Date range changed")

	for _, sub := range s.snapshotSubs() {
		sub.fn(r)
	}

	ev := events.FilterChanged{From: r.From, To: r.To, Source: source}
	if err := s.publisher.PublishFilterChanged(context.Background(), ev); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish filter change")
	}

	return persistErr
}

func (s *Store) persist(r Range) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal date range: %w", err)
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		metrics.FilterPersistErrors.Inc()
		logging.Error().Err(err).Msg("Failed to persist date range")
		return fmt.Errorf("persist date range: %w", err)
	}
	return nil
}

// Subscribe registers fn to run after every change. Callbacks run on the
// goroutine that made the change, in registration order. A callback must
// not call SetRange or SetPreset.
func (s *Store) Subscribe(fn func(Range)) Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	s.subs = append(s.subs, subscriber{id: s.nextID, fn: fn})
	return Subscription{store: s, id: s.nextID}
}

func (s *Store) unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Store) snapshotSubs() []subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]subscriber, len(s.subs))
	copy(out, s.subs)
	return out
}
