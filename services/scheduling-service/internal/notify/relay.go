package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
)

type envelope struct {
	Origin string       `json:"origin"`
	Event  events.Event `json:"event"`
}

// RedisRelay shares events between instances over one pub/sub channel so a
// dashboard connected to any instance sees bookings made on another.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	origin  string
	local   Sink
	logger  *slog.Logger
}

// NewRedisRelay relays for the instance named origin; events received from
// other instances go to local.
func NewRedisRelay(rdb redis.UniversalClient, channel, origin string, local Sink, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = "pawbook:scheduling:events"
	}
	return &RedisRelay{rdb: rdb, channel: channel, origin: origin, local: local, logger: logger}
}

// Deliver publishes evt for the other instances.
func (r *RedisRelay) Deliver(ctx context.Context, evt events.Event) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Event: evt})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run forwards events published by other instances to the local sink until
// ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("event relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("relay message dropped", "err", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			if err := r.local.Deliver(ctx, env.Event); err != nil {
				r.logger.Warn("relay delivery failed", "event_id", env.Event.ID, "err", err)
			}
		}
	}
}
