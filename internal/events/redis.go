package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "econtract.events"

// RedisPublisher publishes events as JSON on a redis pub/sub channel.
type RedisPublisher struct {
	log     *zap.Logger
	rdb     *redis.Client
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to addr and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, channel string, log *zap.Logger) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisherWithClient(rdb, channel, log), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(rdb *redis.Client, channel string, log *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{
		log:     log.With(zap.String("component", "events.redis")),
		rdb:     rdb,
		channel: channel,
	}
}

// Publish sends one event.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Subscribe delivers channel events to onEvent until ctx is done.
// It returns once the subscription is confirmed.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(Event)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					p.log.Warn("bad event payload", zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

// Close closes the redis client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
