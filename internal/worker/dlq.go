package worker

// Events that exhaust their delivery attempts are parked in a Redis list per
// source queue (dlq:{queue}) for manual inspection.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps a dead event with metadata for debugging.
type DLQEntry struct {
	OriginalQueue string   `json:"original_queue"`
	Event         Envelope `json:"event"`
	Reason        string   `json:"reason"`
	FailedAt      string   `json:"failed_at"` // ISO 8601
	Attempts      int      `json:"attempts"`
}

// DeadLetters receives events the relay gave up on.
type DeadLetters interface {
	Send(ctx context.Context, env Envelope, reason string, attempts int)
}

// RedisDLQ parks dead events in dlq:{queue}.
type RedisDLQ struct {
	rdb   *redis.Client
	queue string
	now   func() time.Time
}

func NewRedisDLQ(rdb *redis.Client, queue string) *RedisDLQ {
	if queue == "" {
		queue = QueueEvents
	}
	return &RedisDLQ{rdb: rdb, queue: queue, now: time.Now}
}

func (d *RedisDLQ) Send(ctx context.Context, env Envelope, reason string, attempts int) {
	entry := DLQEntry{
		OriginalQueue: d.queue,
		Event:         env,
		Reason:        reason,
		FailedAt:      d.now().UTC().Format(time.RFC3339),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.ID.String()).Msg("dlq: failed to marshal entry")
		return
	}

	key := DLQPrefix + d.queue
	if err := d.rdb.LPush(ctx, key, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", key).Str("event_id", env.ID.String()).Msg("dlq: failed to push")
		return
	}

	log.Warn().
		Str("queue", d.queue).
		Str("type", env.Type).
		Str("event_id", env.ID.String()).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: event moved to dead letter queue")
}

// Len returns the number of parked events, for monitoring.
func (d *RedisDLQ) Len(ctx context.Context) (int64, error) {
	return d.rdb.LLen(ctx, DLQPrefix+d.queue).Result()
}
