// Package events relays broker events between nodes over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
)

// DefaultChannel carries relayed events when no channel is configured.
const DefaultChannel = "cms:events"

// Envelope is the wire form of a relayed event.
type Envelope struct {
	Node    string          `json:"node"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Relay publishes local events and replays events from other nodes.
type Relay struct {
	client  *redis.Client
	channel string
	node    string
	logger  *slog.Logger
}

// NewRelay constructs a Relay. An empty node gets a random identifier.
func NewRelay(client *redis.Client, channel, node string, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if node == "" {
		node = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, node: node, logger: logger}
}

// Node identifies this process on the channel.
func (r *Relay) Node() string {
	return r.node
}

// Publish implements broker.Relay.
func (r *Relay) Publish(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event, err)
	}
	msg, err := json.Marshal(Envelope{Node: r.node, Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("events: encode envelope: %w", err)
	}
	return r.client.Publish(ctx, r.channel, msg).Err()
}

// Run delivers events published by other nodes to b until ctx is cancelled.
// ready, when non-nil, is closed once the subscription is active.
func (r *Relay) Run(ctx context.Context, b *broker.Broker, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("events: subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("event relay subscribed", slog.String("channel", r.channel), slog.String("node", r.node))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, b, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, b *broker.Broker, raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Warn("malformed relayed event", slog.Any("error", err))
		return
	}
	if env.Node == r.node || env.Event == "" {
		return
	}
	var payload any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			r.logger.Warn("malformed relayed payload", slog.String("event", env.Event), slog.Any("error", err))
			return
		}
	}
	b.EmitLocal(ctx, env.Event, payload)
}
