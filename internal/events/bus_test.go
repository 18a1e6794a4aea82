// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/logging"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, TopicCacheInvalidated)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pubCtx := logging.ContextWithCorrelationID(context.Background(), "corr1234")
	go func() {
		_ = bus.PublishCacheInvalidated(pubCtx, CacheInvalidated{
			Mutation:   "update-lead-status",
			Operations: []string{"leads", "lead-stats"},
			Entries:    3,
		})
	}()

	select {
	case msg := <-ch:
		defer msg.Ack()
		var got CacheInvalidated
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Mutation != "update-lead-status" || got.Entries != 3 || len(got.Operations) != 2 {
			t.Errorf("payload = %+v", got)
		}
		if id := msg.Metadata.Get(MetadataCorrelationID); id != "corr1234" {
			t.Errorf("correlation id = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBusClosed(t *testing.T) {
	bus := NewBus(nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	err := bus.PublishFilterChanged(context.Background(), FilterChanged{})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("publish after close: %v", err)
	}
	if _, err := bus.Subscribe(context.Background(), TopicFilterChanged); !errors.Is(err, ErrBusClosed) {
		t.Errorf("subscribe after close: %v", err)
	}
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	got  []string
	data []any
	seen chan struct{}
}

func (r *recordingBroadcaster) BroadcastJSON(messageType string, data any) {
	r.mu.Lock()
	r.got = append(r.got, messageType)
	r.data = append(r.data, data)
	r.mu.Unlock()
	select {
	case r.seen <- struct{}{}:
	default:
	}
}

func TestRelayForwardsTopics(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	target := &recordingBroadcaster{seen: make(chan struct{}, 4)}
	relay := NewRelay(bus, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Serve(ctx) }()

	// gochannel drops messages published before a subscriber exists.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = bus.PublishFilterChanged(context.Background(), FilterChanged{Source: "preset"})
		select {
		case <-target.seen:
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("relay never forwarded filter.changed")
			}
			continue
		}
		break
	}

	target.mu.Lock()
	first := target.got[0]
	payload, _ := target.data[0].(map[string]any)
	target.mu.Unlock()

	if first != TopicFilterChanged {
		t.Errorf("message type = %q, want %q", first, TopicFilterChanged)
	}
	if payload["source"] != "preset" {
		t.Errorf("payload = %v", payload)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
