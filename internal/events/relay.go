// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/logging"
)

// Broadcaster receives relayed events. The WebSocket hub implements it.
type Broadcaster interface {
	BroadcastJSON(messageType string, data any)
}

// Relay forwards bus topics to a Broadcaster. It runs as a supervised
// service: Serve blocks until ctx is done.
type Relay struct {
	bus    *Bus
	target Broadcaster
	topics []string
}

// NewRelay relays filter.changed and cache.invalidated to target.
func NewRelay(bus *Bus, target Broadcaster) *Relay {
	return &Relay{
		bus:    bus,
		target: target,
		topics: []string{TopicFilterChanged, TopicCacheInvalidated},
	}
}

// Serve implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan relayed)
	for _, topic := range r.topics {
		ch, err := r.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		go func(topic string, ch <-chan *message.Message) {
			for msg := range ch {
				select {
				case merged <- relayed{topic: topic, msg: msg}:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}(topic, ch)
	}

	logging.Info().Strs("topics", r.topics).Msg("Event relay started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "event-relay").Msg("Event relay stopped")
			return ctx.Err()
		case in := <-merged:
			r.forward(in.topic, in.msg)
		}
	}
}

func (r *Relay) String() string { return "event-relay" }

type relayed struct {
	topic string
	msg   *message.Message
}

func (r *Relay) forward(topic string, msg *message.Message) {
	defer msg.Ack()

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).
			Msg("Dropping undecodable event")
		return
	}
	if id := msg.Metadata.Get(MetadataCorrelationID); id != "" {
		payload[MetadataCorrelationID] = id
	}
	r.target.BroadcastJSON(topic, payload)
}
