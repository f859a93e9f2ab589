package worker

import (
	"context"
	"encoding/json"
	"time"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// QueueEvents is the Redis list the outbox relay publishes to.
const QueueEvents = "events:vallenar"

// Envelope is the wire form of an outbox event.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Attempt     int             `json:"attempt"`
}

func envelopeOf(ev model.OutboxEvent) Envelope {
	return Envelope{
		ID:          ev.ID,
		Type:        ev.Type,
		AggregateID: ev.AggregateID,
		Payload:     json.RawMessage(ev.Payload),
		OccurredAt:  ev.CreatedAt,
		Attempt:     ev.Attempts + 1,
	}
}

// Publisher delivers one envelope to the broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// RedisPublisher pushes envelopes onto a Redis list consumed with BRPOP.
type RedisPublisher struct {
	rdb   *redis.Client
	queue string
}

func NewRedisPublisher(rdb *redis.Client, queue string) *RedisPublisher {
	if queue == "" {
		queue = QueueEvents
	}
	return &RedisPublisher{rdb: rdb, queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.rdb.LPush(ctx, p.queue, encoded).Err()
}

// Handler processes one consumed event. Events without a registered handler
// are logged and dropped.
type Handler func(ctx context.Context, env Envelope) error

// StartConsumerPool launches numWorkers goroutines consuming the event queue.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartConsumerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers map[string]Handler) {
	for i := 0; i < numWorkers; i++ {
		go runConsumer(ctx, rdb, i, handlers)
	}
	log.Info().Int("workers", numWorkers).Msg("event consumer pool started")
}

func runConsumer(ctx context.Context, rdb *redis.Client, id int, handlers map[string]Handler) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("worker", id).Msg("event consumer shutting down")
			return
		default:
			// waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, QueueEvents).Result()
			if err != nil {
				continue
			}
			if len(result) < 2 {
				continue
			}
			consume(ctx, result[1], handlers)
		}
	}
}

func consume(ctx context.Context, raw string, handlers map[string]Handler) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Error().Err(err).Msg("event consumer: malformed envelope")
		return
	}
	h, ok := handlers[env.Type]
	if !ok {
		log.Debug().Str("type", env.Type).Str("event_id", env.ID.String()).Msg("event consumer: no handler")
		return
	}
	if err := h(ctx, env); err != nil {
		log.Error().Err(err).Str("type", env.Type).Str("event_id", env.ID.String()).Msg("event consumer: handler failed")
	}
}

// LogHandler records the event in the service log. It is the default
// subscriber for treasury and sales notifications.
func LogHandler(_ context.Context, env Envelope) error {
	log.Info().
		Str("type", env.Type).
		Str("event_id", env.ID.String()).
		Str("aggregate_id", env.AggregateID.String()).
		RawJSON("payload", env.Payload).
		Msg("event received")
	return nil
}
