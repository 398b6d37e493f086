/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/framewall/internal/config"
	"github.com/friendsincode/framewall/internal/events"
)

const redisChannel = "framewall:events"

// redisRelay mirrors bus events over one Redis pub/sub channel.
type redisRelay struct {
	client *redis.Client
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger
}

func newRedisRelay(cfg *config.Config, nodeID string, bus *events.Bus, logger zerolog.Logger) (*redisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info().Str("addr", cfg.RedisAddr).Str("node", nodeID).Msg("redis event relay connected")
	return &redisRelay{
		client: client,
		bus:    bus,
		nodeID: nodeID,
		logger: logger.With().Str("component", "redis_relay").Logger(),
	}, nil
}

// Run relays events in both directions until context cancellation.
func (r *redisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	go func() {
		for msg := range pubsub.Channel() {
			env, err := unmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed relay message")
				continue
			}
			if env.NodeID == r.nodeID {
				continue
			}
			inject(r.bus, env)
		}
	}()

	mirror(ctx, r.bus, func(eventType events.EventType, payload events.Payload) {
		data, err := marshalEnvelope(eventType, payload, r.nodeID)
		if err != nil {
			r.logger.Error().Err(err).Msg("marshal relay envelope failed")
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.client.Publish(pubCtx, redisChannel, data).Err(); err != nil {
			r.logger.Warn().Err(err).Str("event", string(eventType)).Msg("redis publish failed")
		}
		cancel()
	})
	return ctx.Err()
}

func (r *redisRelay) Close() error {
	return r.client.Close()
}
