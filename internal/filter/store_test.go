// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/kvstore"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newKV(t *testing.T) *kvstore.Store {
	t.Helper()
	kv, err := kvstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestNewDefaultsToThirtyDays(t *testing.T) {
	s := New(newKV(t), Options{Clock: fixedClock})

	got := s.Range()
	if !got.To.Equal(testNow) {
		t.Errorf("To = %v, want %v", got.To, testNow)
	}
	if want := testNow.AddDate(0, 0, -30); !got.From.Equal(want) {
		t.Errorf("From = %v, want %v", got.From, want)
	}
}

func TestSetPresetPersistsAcrossReload(t *testing.T) {
	kv := newKV(t)
	s := New(kv, Options{Clock: fixedClock})

	if err := s.SetPreset(Preset7Days); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}
	want := Range{From: testNow.AddDate(0, 0, -7), To: testNow}
	if got := s.Range(); !got.From.Equal(want.From) || !got.To.Equal(want.To) {
		t.Errorf("Range = %+v, want %+v", got, want)
	}

	later := func() time.Time { return testNow.Add(48 * time.Hour) }
	reloaded := New(kv, Options{Clock: later})
	got := reloaded.Range()
	if !got.From.Equal(want.From) || !got.To.Equal(want.To) {
		t.Errorf("reloaded Range = %+v, want %+v", got, want)
	}
}

func TestCorruptedValueFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "{{{"},
		{name: "wrong shape", value: `["a","b"]`},
		{name: "missing fields", value: `{}`},
		{name: "bad timestamp", value: `{"from":"yesterday","to":"today"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newKV(t)
			if err := kv.Set(StorageKey, []byte(tt.value)); err != nil {
				t.Fatal(err)
			}
			s := New(kv, Options{Clock: fixedClock})
			if got := s.Range().Days(); got != 30 {
				t.Errorf("Days = %d, want 30", got)
			}
		})
	}
}

func TestInvertedRangeAccepted(t *testing.T) {
	s := New(newKV(t), Options{Clock: fixedClock})
	inverted := Range{From: testNow, To: testNow.AddDate(0, 0, -3)}

	if err := s.SetRange(inverted); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	got := s.Range()
	if !got.Inverted() {
		t.Errorf("Range = %+v, expected inverted range kept as given", got)
	}
}

func TestSetPresetIdempotent(t *testing.T) {
	s := New(newKV(t), Options{Clock: fixedClock})
	_ = s.SetPreset(Preset30Days)
	first := s.Range()
	_ = s.SetPreset(Preset30Days)
	second := s.Range()
	if !first.From.Equal(second.From) || !first.To.Equal(second.To) {
		t.Errorf("SetPreset twice: %+v then %+v", first, second)
	}
}

func TestSetPresetUnknown(t *testing.T) {
	s := New(newKV(t), Options{Clock: fixedClock})
	before := s.Range()
	if err := s.SetPreset(Preset(14)); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("SetPreset(14) err = %v, want ErrUnknownPreset", err)
	}
	if s.Range() != before {
		t.Error("range changed after rejected preset")
	}
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	s := New(newKV(t), Options{Clock: fixedClock})

	var calls []string
	subA := s.Subscribe(func(Range) { calls = append(calls, "a") })
	s.Subscribe(func(r Range) {
		calls = append(calls, "b")
		if r.Days() != 90 {
			t.Errorf("subscriber saw %d days, want 90", r.Days())
		}
	})

	if err := s.SetPreset(Preset90Days); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}

	subA.Unsubscribe()
	subA.Unsubscribe()
	calls = nil
	_ = s.SetPreset(Preset7Days)
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("after unsubscribe calls = %v, want [b]", calls)
	}
}

type failingKV struct{}

func (failingKV) Get(string) ([]byte, error) { return nil, kvstore.ErrNotFound }
func (failingKV) Set(string, []byte) error   { return errors.New("disk full") }

func TestPersistFailureStillApplies(t *testing.T) {
	s := New(failingKV{}, Options{Clock: fixedClock})

	notified := false
	s.Subscribe(func(Range) { notified = true })

	err := s.SetPreset(Preset7Days)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if s.Range().Days() != 7 {
		t.Errorf("Days = %d, want 7", s.Range().Days())
	}
	if !notified {
		t.Error("subscriber not notified")
	}
}

type capturePublisher struct {
	events.Discard
	got []events.FilterChanged
}

func (c *capturePublisher) PublishFilterChanged(_ context.Context, ev events.FilterChanged) error {
	c.got = append(c.got, ev)
	return nil
}

func TestChangePublishesEvent(t *testing.T) {
	pub := &capturePublisher{}
	s := New(newKV(t), Options{Clock: fixedClock, Publisher: pub})

	_ = s.SetPreset(Preset7Days)
	_ = s.SetRange(Range{From: testNow.AddDate(0, -1, 0), To: testNow})

	if len(pub.got) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.got))
	}
	if pub.got[0].Source != "preset" || pub.got[1].Source != "range" {
		t.Errorf("sources = %q, %q", pub.got[0].Source, pub.got[1].Source)
	}
}

func TestRangeParams(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	a := Range{From: testNow, To: testNow.Add(time.Hour)}
	b := Range{From: testNow.In(est), To: testNow.Add(time.Hour).In(est)}
	c := Range{From: testNow.Add(time.Second), To: testNow.Add(time.Hour)}

	if a.Params()["from"] != b.Params()["from"] {
		t.Error("same instant in different zones should render equal params")
	}
	if a.Params()["from"] == c.Params()["from"] {
		t.Error("different instants should render different params")
	}
}
