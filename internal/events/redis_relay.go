package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vendorsec-backend/internal/shared/telemetry"
)

const defaultChannelPrefix = "vendorsec:events"

type envelope struct {
	Origin    string    `json:"origin"`
	SessionID string    `json:"session_id"`
	Namespace Namespace `json:"namespace"`
	Event     Event     `json:"event"`
}

// RedisRelay mirrors bus traffic between API instances through Redis pub/sub
// so a client can stream from any instance.
type RedisRelay struct {
	client *redis.Client
	origin string
	prefix string
	out    chan envelope
}

// NewRedisRelay parses redisURL and prepares a relay with a bounded outbox.
func NewRedisRelay(redisURL string, outbox int) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if outbox <= 0 {
		outbox = 1024
	}
	return &RedisRelay{
		client: redis.NewClient(opts),
		origin: uuid.NewString(),
		prefix: defaultChannelPrefix,
		out:    make(chan envelope, outbox),
	}, nil
}

// Ping verifies the Redis connection.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Forward queues an event for other instances. A full outbox drops the event
// rather than blocking the publisher.
func (r *RedisRelay) Forward(sessionID string, ns Namespace, ev Event) {
	select {
	case r.out <- envelope{Origin: r.origin, SessionID: sessionID, Namespace: ns, Event: ev}:
	default:
		telemetry.Warn("events.relay_dropped", map[string]any{
			"session_id": sessionID,
			"namespace":  string(ns),
			"event_type": string(ev.EventType),
		})
	}
}

// Run publishes the outbox and delivers remote events into bus until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, bus *Bus) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+":*")
	defer pubsub.Close()
	incoming := pubsub.Channel()

	log.Printf("event relay started origin=%s", r.origin)
	for {
		select {
		case <-ctx.Done():
			return r.client.Close()
		case env := <-r.out:
			r.publish(ctx, env)
		case msg, ok := <-incoming:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			r.handle(bus, msg.Payload)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		telemetry.Warn("events.relay_encode_failed", map[string]any{
			"session_id": env.SessionID,
			"namespace":  string(env.Namespace),
			"event_type": string(env.Event.EventType),
			"err":        err,
		})
		return
	}
	if err := r.client.Publish(ctx, r.channel(env.SessionID, env.Namespace), payload).Err(); err != nil {
		telemetry.Error("events.relay_publish_failed", map[string]any{
			"session_id": env.SessionID,
			"err":        err,
		})
	}
}

func (r *RedisRelay) channel(sessionID string, ns Namespace) string {
	return strings.Join([]string{r.prefix, sessionID, string(ns)}, ":")
}

func (r *RedisRelay) handle(bus *Bus, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.Origin == r.origin || env.SessionID == "" {
		return
	}
	bus.DeliverRemote(env.SessionID, env.Namespace, env.Event)
}
