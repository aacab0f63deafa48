package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisRelay shares events between server instances. Deliver publishes to
// a redis channel instead of the local hub; Subscribe listens on the same
// channel and feeds every received envelope to the local hub, including the
// ones this instance published.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Deliverer
	logger  *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, local Deliverer, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(nopWriter{}, nil))
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With("component", "relay"),
	}
}

// Deliver publishes env. It returns 0 because local delivery happens later,
// when the subscription receives the message.
func (r *RedisRelay) Deliver(env Envelope) int {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("failed to encode envelope", "event", env.Event, "error", err)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to publish event", "event", env.Event, "error", err)
	}
	return 0
}

// Subscribe blocks until the subscription is confirmed and then relays
// messages in a goroutine until ctx is cancelled.
func (r *RedisRelay) Subscribe(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
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
				r.relay(msg.Payload)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) relay(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("discarding malformed relay message", "error", err)
		return
	}
	r.local.Deliver(env)
}
