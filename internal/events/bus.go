// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package events carries in-process notifications between the filter store,
// the mutation coordinator and the WebSocket hub.
//
// Transport is Watermill's gochannel pub/sub. Payloads are JSON so a durable
// broker could be swapped in without touching publishers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/logging"
)

// Topics.
const (
	TopicFilterChanged    = "filter.changed"
	TopicCacheInvalidated = "cache.invalidated"
)

// Metadata keys set on every message.
const (
	MetadataCorrelationID = "correlation_id"
	MetadataPublishedAt   = "published_at"
)

// ErrBusClosed is returned when publishing after Close.
var ErrBusClosed = errors.New("event bus is closed")

// FilterChanged is published whenever the shared date range changes.
type FilterChanged struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Source string    `json:"source"` // range or preset
}

// CacheInvalidated is published after a successful mutation marked entries
// stale.
type CacheInvalidated struct {
	Mutation   string   `json:"mutation"`
	Operations []string `json:"operations"`
	Entries    int      `json:"entries"`
}

// Publisher is the publishing half of the bus. Components depend on this
// rather than on *Bus so tests can capture events.
type Publisher interface {
	PublishFilterChanged(ctx context.Context, ev FilterChanged) error
	PublishCacheInvalidated(ctx context.Context, ev CacheInvalidated) error
}

// Bus is an in-process pub/sub bus.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus. A nil logger uses the zerolog-backed slog adapter.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
	}
}

// PublishFilterChanged implements Publisher.
func (b *Bus) PublishFilterChanged(ctx context.Context, ev FilterChanged) error {
	return b.publish(ctx, TopicFilterChanged, ev)
}

// PublishCacheInvalidated implements Publisher.
func (b *Bus) PublishCacheInvalidated(ctx context.Context, ev CacheInvalidated) error {
	return b.publish(ctx, TopicCacheInvalidated, ev)
}

func (b *Bus) publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataPublishedAt, time.Now().UTC().Format(time.RFC3339Nano))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetadataCorrelationID, id)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of messages on topic. Each message must be
// acked. The channel closes when ctx is done or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	return b.pubsub.Subscribe(ctx, topic)
}

// Close stops the bus and closes every subscription channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// PublishFilterChanged implements Publisher.
func (Discard) PublishFilterChanged(context.Context, FilterChanged) error { return nil }

// PublishCacheInvalidated implements Publisher.
func (Discard) PublishCacheInvalidated(context.Context, CacheInvalidated) error { return nil }
