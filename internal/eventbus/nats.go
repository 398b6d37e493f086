/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/events"
)

const natsSubjectPrefix = "framewall.events."

// natsRelay mirrors bus events over NATS core pub/sub. One wildcard
// subscription covers every relayed event type.
type natsRelay struct {
	conn   *nats.Conn
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger
}

func newNATSRelay(url, nodeID string, bus *events.Bus, logger zerolog.Logger) (*natsRelay, error) {
	conn, err := nats.Connect(url,
		nats.Name("framewall-"+nodeID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info().Str("url", url).Str("node", nodeID).Msg("nats event relay connected")
	return &natsRelay{
		conn:   conn,
		bus:    bus,
		nodeID: nodeID,
		logger: logger.With().Str("component", "nats_relay").Logger(),
	}, nil
}

// Run relays events in both directions until context cancellation.
func (r *natsRelay) Run(ctx context.Context) error {
	sub, err := r.conn.Subscribe(natsSubjectPrefix+">", func(msg *nats.Msg) {
		env, err := unmarshalEnvelope(msg.Data)
		if err != nil {
			r.logger.Warn().Err(err).Msg("dropping malformed relay message")
			return
		}
		if env.NodeID == r.nodeID {
			return
		}
		inject(r.bus, env)
	})
	if err != nil {
		return fmt.Errorf("subscribe nats: %w", err)
	}
	defer sub.Unsubscribe()

	mirror(ctx, r.bus, func(eventType events.EventType, payload events.Payload) {
		data, err := marshalEnvelope(eventType, payload, r.nodeID)
		if err != nil {
			r.logger.Error().Err(err).Msg("marshal relay envelope failed")
			return
		}
		if err := r.conn.Publish(natsSubjectPrefix+string(eventType), data); err != nil {
			r.logger.Warn().Err(err).Str("event", string(eventType)).Msg("nats publish failed")
		}
	})
	return ctx.Err()
}

func (r *natsRelay) Close() error {
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return err
	}
	return nil
}
