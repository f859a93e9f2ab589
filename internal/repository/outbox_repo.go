package repository

import (
	"context"
	"time"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx *gorm.DB, ev *model.OutboxEvent) error
	// ClaimPending locks due events with SKIP LOCKED so concurrent relays never
	// publish the same row twice.
	ClaimPending(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]model.OutboxEvent, error)
	MarkDispatched(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, tx *gorm.DB, id uuid.UUID, attempts int, lastErr string) error
	CountPending(ctx context.Context) (int64, error)
}

type outboxRepo struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepo{db: db} }

func (r *outboxRepo) Enqueue(ctx context.Context, tx *gorm.DB, ev *model.OutboxEvent) error {
	if ev.NextAttemptAt.IsZero() {
		ev.NextAttemptAt = time.Now()
	}
	if ev.Status == "" {
		ev.Status = model.OutboxPending
	}
	return classify(conn(ctx, r.db, tx).Create(ev).Error)
}

func (r *outboxRepo) ClaimPending(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, classify(err)
}

func (r *outboxRepo) MarkDispatched(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return classify(conn(ctx, r.db, tx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDispatched, "dispatched_at": at}).Error)
}

func (r *outboxRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return classify(conn(ctx, r.db, tx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{"attempts": attempts, "next_attempt_at": next, "last_error": lastErr}).Error)
}

func (r *outboxRepo) MarkDead(ctx context.Context, tx *gorm.DB, id uuid.UUID, attempts int, lastErr string) error {
	return classify(conn(ctx, r.db, tx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDead, "attempts": attempts, "last_error": lastErr}).Error)
}

func (r *outboxRepo) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("status = ?", model.OutboxPending).Count(&n).Error
	return n, classify(err)
}
