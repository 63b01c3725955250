package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel carries device updates between processes.
const DefaultRelayChannel = "devicewatch:device-updates"

// DeviceUpdate is the wire form on the relay channel.
type DeviceUpdate struct {
	DeviceID DeviceID        `json:"deviceId"`
	Type     string          `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// RedisRelay fans device updates published by any instance out to the local
// hub. Every instance, the publisher included, delivers through the
// subscription.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	log     *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{rdb: rdb, hub: hub, channel: DefaultRelayChannel, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, deviceID, eventType string, data any) error {
	if err := validateDeviceID(deviceID); err != nil {
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal device update: %w", err)
	}

	payload, err := json.Marshal(DeviceUpdate{DeviceID: DeviceID(deviceID), Type: eventType, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal device update: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish device update: %w", err)
	}
	return nil
}

// RunForever keeps the subscription alive, resubscribing with backoff after
// failures, until ctx is cancelled.
func (r *RedisRelay) RunForever(ctx context.Context) {
	attempt := 0

	for {
		started := time.Now()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		// a subscription that held for a while resets the backoff
		if time.Since(started) > backoffCap {
			attempt = 0
		}

		delay := reconnectDelay(attempt)
		attempt++
		r.log.Warn("realtime relay disconnected", "err", err, "retry_in", delay.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Run subscribes and delivers until ctx is cancelled or the subscription fails.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.log.Info("realtime relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			if _, err := r.deliver(msg.Payload); err != nil {
				r.log.Warn("realtime relay dropped payload", "err", err)
			}
		}
	}
}

func (r *RedisRelay) deliver(payload string) (int, error) {
	var u DeviceUpdate
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return 0, fmt.Errorf("decode device update: %w", err)
	}

	id := string(u.DeviceID)
	if err := validateDeviceID(id); err != nil {
		return 0, err
	}

	var data any
	if len(u.Data) > 0 && string(u.Data) != "null" {
		data = u.Data
	}

	return r.hub.PublishDevice(id, u.Type, data), nil
}
