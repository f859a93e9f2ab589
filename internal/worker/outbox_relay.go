package worker

// The relay polls outbox_events, publishes due rows through the circuit
// breaker and records the outcome in the same transaction that claimed them.
// Claims use SKIP LOCKED, so several relays can run side by side.

import (
	"context"
	"fmt"
	"time"

	"vallenar/internal/infra"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultRelayInterval = 5 * time.Second
	defaultRelayBatch    = 50
	// MaxDeliveryAttempts before an event is marked dead and parked in the DLQ.
	MaxDeliveryAttempts = 8
	maxRelayBackoff     = 10 * time.Minute
)

// TxRunner is satisfied by service.TxRunner.
type TxRunner interface {
	Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error
}

// RelayConfig holds all dependencies for the relay goroutine.
type RelayConfig struct {
	Tx          TxRunner
	Outbox      repository.OutboxRepository
	Publisher   Publisher
	CB          *infra.CircuitBreaker
	DLQ         DeadLetters
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type OutboxRelay struct {
	cfg RelayConfig
	now func() time.Time
}

func NewOutboxRelay(cfg RelayConfig) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRelayInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRelayBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxDeliveryAttempts
	}
	return &OutboxRelay{cfg: cfg, now: time.Now}
}

// Start launches the polling goroutine. It stops when ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", r.cfg.Interval).Msg("outbox_relay: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("outbox_relay: shutting down")
				return
			case <-ticker.C:
				if _, err := r.Tick(ctx); err != nil {
					log.Error().Err(err).Msg("outbox_relay: tick failed")
				}
			}
		}
	}()
}

// Tick relays one batch and returns how many events were dispatched.
func (r *OutboxRelay) Tick(ctx context.Context) (int, error) {
	// don't hammer a downed broker
	if r.cfg.CB != nil && r.cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("outbox_relay: circuit breaker is open, skipping tick")
		return 0, nil
	}

	var dispatched int
	err := r.cfg.Tx.Run(ctx, "outbox.relay", func(tx *gorm.DB) error {
		dispatched = 0
		now := r.now()
		events, err := r.cfg.Outbox.ClaimPending(ctx, tx, now, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		for i := range events {
			ev := &events[i]
			// the breaker may trip mid-batch; unpublished rows stay pending
			if r.cfg.CB != nil && r.cfg.CB.State() == infra.CBOpen {
				log.Debug().Msg("outbox_relay: circuit breaker opened mid-batch, stopping")
				return nil
			}
			if err := r.deliver(ctx, tx, ev, now); err != nil {
				return err
			}
			if ev.Status == model.OutboxDispatched {
				dispatched++
			}
		}
		return nil
	})
	return dispatched, err
}

func (r *OutboxRelay) deliver(ctx context.Context, tx *gorm.DB, ev *model.OutboxEvent, now time.Time) error {
	env := envelopeOf(*ev)
	pubErr := r.publish(ctx, env)
	if pubErr == nil {
		ev.Status = model.OutboxDispatched
		infra.OutboxDelivered.WithLabelValues("dispatched").Inc()
		return r.cfg.Outbox.MarkDispatched(ctx, tx, ev.ID, now)
	}

	attempts := ev.Attempts + 1
	msg := pubErr.Error()
	if attempts >= r.cfg.MaxAttempts {
		ev.Status = model.OutboxDead
		infra.OutboxDelivered.WithLabelValues("dead").Inc()
		log.Error().
			Str("event_id", ev.ID.String()).
			Str("type", ev.Type).
			Int("attempts", attempts).
			Msg("outbox_relay: max attempts exceeded, moving to DLQ")
		if r.cfg.DLQ != nil {
			r.cfg.DLQ.Send(ctx, env, fmt.Sprintf("max attempts (%d) exceeded: %s", r.cfg.MaxAttempts, msg), attempts)
		}
		return r.cfg.Outbox.MarkDead(ctx, tx, ev.ID, attempts, msg)
	}

	next := now.Add(computeRetryBackoff(attempts))
	infra.OutboxDelivered.WithLabelValues("failed").Inc()
	log.Warn().
		Err(pubErr).
		Str("event_id", ev.ID.String()).
		Int("attempts", attempts).
		Time("next_attempt_at", next).
		Msg("outbox_relay: publish failed, scheduled next attempt")
	return r.cfg.Outbox.MarkFailed(ctx, tx, ev.ID, attempts, next, msg)
}

func (r *OutboxRelay) publish(ctx context.Context, env Envelope) error {
	if r.cfg.CB == nil {
		return r.cfg.Publisher.Publish(ctx, env)
	}
	return r.cfg.CB.Execute(func() error { return r.cfg.Publisher.Publish(ctx, env) })
}

// computeRetryBackoff doubles from 10s per attempt, capped at maxRelayBackoff.
func computeRetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := 10 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRelayBackoff {
			return maxRelayBackoff
		}
	}
	return d
}
