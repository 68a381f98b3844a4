// Package sink mirrors the event bus into Redis Streams so external
// consumers can replay world history without holding a live subscription.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultStream = "vault:events"

// RedisSink copies published events into one Redis stream, fire and forget.
type RedisSink struct {
	rdb    *redis.Client
	stream string
	sub    *sim.Subscription
	cancel context.CancelFunc
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL, stream string, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if stream == "" {
		stream = defaultStream
	}
	logger.Info("Redis connected", zap.String("stream", stream))
	return &RedisSink{rdb: rdb, stream: stream, logger: logger}, nil
}

// Attach subscribes to both wildcards and starts mirroring in the
// background.
func (s *RedisSink) Attach(bus *sim.Bus) {
	s.sub = bus.Subscribe(sim.RoomWildcard, sim.AgentWildcard)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pump(ctx)
}

func (s *RedisSink) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.sub.C():
			if !ok {
				return
			}
			s.write(ctx, evt)
		}
	}
}

// write appends one event to the stream. Failures are logged, never
// propagated; the sink must not slow the simulation down.
func (s *RedisSink) write(ctx context.Context, evt sim.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("event marshal failed", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"type":    evt.Type,
			"channel": evt.Channel,
			"data":    string(data),
		},
	}).Err()
	if err != nil {
		s.logger.Warn("event mirror failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

// Close stops the mirror and shuts down the Redis connection.
func (s *RedisSink) Close(bus *sim.Bus) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		bus.Unsubscribe(s.sub)
	}
	return s.rdb.Close()
}
