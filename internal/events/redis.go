package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel domain events are published on.
const DefaultChannel = "broadcast"

// RedisPublisher publishes domain events to a Redis channel so every API instance can relay them.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher creates a publisher on channel, or DefaultChannel when empty.
func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish encodes e and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("failed to publish event", "type", e.Type, "event_id", e.Room(), "error", err)
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// RedisRelay forwards events from a Redis channel into the local broker.
type RedisRelay struct {
	client  *redis.Client
	channel string
	broker  *Broker
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisRelay creates a relay from channel, or DefaultChannel when empty, into broker.
func NewRedisRelay(client *redis.Client, channel string, broker *Broker, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel, broker: broker, logger: logger}
}

// Start subscribes to the channel and relays messages in the background until Stop is called
// or ctx is cancelled. The subscription is confirmed before Start returns.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, sub, r.done)

	r.logger.Info("redis relay started", "channel", r.channel)
	return nil
}

func (r *RedisRelay) run(ctx context.Context, sub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed relay message", "error", err)
				continue
			}
			_ = r.broker.Publish(ctx, e)
		}
	}
}

// Stop ends the relay and waits for it to exit.
func (r *RedisRelay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("redis relay stopped")
}
