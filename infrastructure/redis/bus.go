// Package redis spreads relay deliveries across instances through Redis pub/sub.
package redis

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "chat-relay:deliveries"

// NewClient connects to addr and checks the server answers.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Bus publishes every delivery on a Redis channel. Each relay instance
// subscribes to it and hands what it receives to its local bus, so a delivery
// reaches the sessions of all instances, the publisher included.
type Bus struct {
	client  *redis.Client
	channel string
	local   contract.IBus
	log     *slog.Logger
}

func NewBus(client *redis.Client, channel string, local contract.IBus, log *slog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{client: client, channel: channel, local: local, log: log}
}

func (b *Bus) Publish(ctx context.Context, d event.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Run forwards the deliveries published by any instance to the local bus.
// It returns an error when the subscription is lost so the supervisor restarts it.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.log.Info("Subscribed to redis channel", "channel", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", b.channel)
			}
			var d event.Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.log.Warn("Dropping malformed delivery", "error", err)
				continue
			}
			if err := b.local.Publish(ctx, d); err != nil {
				return nil
			}
		}
	}
}
