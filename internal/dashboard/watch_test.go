// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package dashboard

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/query"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func observersOf(c *query.Client, key query.Key) int {
	for _, e := range c.Entries() {
		if e.Operation == key.Operation && e.Params == key.Params {
			return e.Observers
		}
	}
	return -1
}

func TestWatchFollowsFilter(t *testing.T) {
	fx := newFixture(t, nil)

	w, err := fx.svc.Watch(OpLeads, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	var updates atomic.Int32
	w.Subscribe(func(query.Result) { updates.Add(1) })

	waitFor(t, func() bool { return w.Result().Status == query.StatusSuccess })
	first := w.Key()
	if observersOf(fx.client, first) != 1 {
		t.Fatalf("observers on first key = %d, want 1", observersOf(fx.client, first))
	}

	if err := fx.filter.SetPreset(filter.Preset90Days); err != nil {
		t.Fatal(err)
	}
	second := w.Key()
	if second == first {
		t.Fatal("watch did not move to the new range")
	}
	if observersOf(fx.client, first) != 0 {
		t.Error("old key still observed")
	}
	waitFor(t, func() bool { return w.Result().Status == query.StatusSuccess })
	if updates.Load() == 0 {
		t.Error("subscriber not notified")
	}
	if fx.backend.queryCount() < 2 {
		t.Errorf("backend queries = %d, want a fetch per range", fx.backend.queryCount())
	}
}

func TestWatchCloseReleasesObserver(t *testing.T) {
	fx := newFixture(t, nil)

	w, err := fx.svc.Watch(OpCommunicationMetrics, map[string]string{"channel": "voice"})
	if err != nil {
		t.Fatal(err)
	}
	key := w.Key()
	w.Close()
	w.Close()

	if observersOf(fx.client, key) != 0 {
		t.Error("observer not released on Close")
	}
	if err := fx.filter.SetPreset(filter.Preset7Days); err != nil {
		t.Fatal(err)
	}
	if w.Key() != (query.Key{}) {
		t.Error("closed watch should not follow the filter")
	}
}

func TestWatchRejectsUnknownOperation(t *testing.T) {
	fx := newFixture(t, nil)
	if _, err := fx.svc.Watch("nope", nil); err == nil {
		t.Error("expected error")
	}
}
