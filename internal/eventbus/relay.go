/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors selected in-process events to an external
// broker so multiple framewall instances behind one load balancer see
// each other's registry mutations. Single-instance deployments run with
// the memory backend and no relay at all.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/config"
	"github.com/friendsincode/framewall/internal/events"
)

// relayedEvents are the event types worth crossing instance boundaries:
// registry mutations, so every instance re-resolves its displays.
var relayedEvents = []events.EventType{
	events.EventContentCreated,
	events.EventContentDeleted,
	events.EventScheduleCreated,
	events.EventScheduleDeleted,
	events.EventSettingsUpdated,
}

// markerKey flags payloads that arrived from the relay, so they are not
// mirrored back out and ping-pong between instances.
const markerKey = "_relayed"

// Relay mirrors local bus events to a broker and re-injects remote ones.
type Relay interface {
	Run(ctx context.Context) error
	Close() error
}

// envelope is the broker wire format.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

// New creates the relay for the configured backend. The memory backend
// returns nil; callers skip Run and Close in that case.
func New(cfg *config.Config, bus *events.Bus, logger zerolog.Logger) (Relay, error) {
	nodeID := cfg.InstanceID
	if nodeID == "" {
		host, _ := os.Hostname()
		nodeID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	switch cfg.EventBus {
	case config.EventBusMemory:
		return nil, nil
	case config.EventBusNATS:
		return newNATSRelay(cfg.NATSURL, nodeID, bus, logger)
	case config.EventBusRedis:
		return newRedisRelay(cfg, nodeID, bus, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal relay envelope: %w", err)
	}
	return &env, nil
}

// inject delivers a remote event to the local bus, marked so the
// outbound mirror skips it.
func inject(bus *events.Bus, env *envelope) {
	payload := make(events.Payload, len(env.Payload)+1)
	for k, v := range env.Payload {
		payload[k] = v
	}
	payload[markerKey] = true
	bus.Publish(env.EventType, payload)
}

func isRelayed(payload events.Payload) bool {
	marked, _ := payload[markerKey].(bool)
	return marked
}

// mirror subscribes to every relayed event type on the local bus and
// calls publish for each locally originated payload until ctx ends.
func mirror(ctx context.Context, bus *events.Bus, publish func(events.EventType, events.Payload)) {
	type tagged struct {
		event   events.EventType
		payload events.Payload
	}
	merged := make(chan tagged, 64)

	subs := make([]events.Subscriber, 0, len(relayedEvents))
	for _, eventType := range relayedEvents {
		sub := bus.Subscribe(eventType)
		subs = append(subs, sub)
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- tagged{event: eventType, payload: payload}:
				default:
				}
			}
		}(eventType, sub)
	}
	defer func() {
		for i, eventType := range relayedEvents {
			bus.Unsubscribe(eventType, subs[i])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-merged:
			if isRelayed(ev.payload) {
				continue
			}
			publish(ev.event, ev.payload)
		}
	}
}
