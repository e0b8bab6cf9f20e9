// Package pubsub carries deliveries between server processes.
package pubsub

import (
	"context"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes deliveries on a Redis channel so that every process
// can hand them to its own connections.
type RedisBroker struct {
	log     *slog.Logger
	client  *redis.Client
	channel string
}

func NewRedisBroker(ctx context.Context, log *slog.Logger, redisURL, channel string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Transient(err)
	}
	return &RedisBroker{log: log, client: client, channel: channel}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, d event.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err = b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Transient(err)
	}
	return nil
}

// Subscribe calls handle for every delivery until ctx ends or the
// subscription breaks. Frames that cannot be decoded are skipped.
func (b *RedisBroker) Subscribe(ctx context.Context, handle func(event.Delivery)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Transient(err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.Transient(fmt.Errorf("subscription to %s closed", b.channel))
			}
			d, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("Skipping undecodable delivery", "channel", b.channel, "error", err)
				continue
			}
			handle(d)
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Decode reads a delivery published by any process.
func Decode(payload []byte) (event.Delivery, error) {
	var d event.Delivery
	if err := json.Unmarshal(payload, &d); err != nil {
		return event.Delivery{}, err
	}
	if d.Event.Event == "" || len(d.Recipients) == 0 {
		return event.Delivery{}, errors.Validation("delivery without event or recipients")
	}
	return d, nil
}
