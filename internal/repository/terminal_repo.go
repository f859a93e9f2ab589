package repository

import (
	"context"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TerminalRepository interface {
	Create(ctx context.Context, t *model.Terminal) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Terminal, error)
	// LockByID takes a FOR UPDATE NOWAIT lock; contention surfaces as ErrBusy.
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Terminal, error)
	Update(ctx context.Context, tx *gorm.DB, t *model.Terminal) error
}

type terminalRepo struct{ db *gorm.DB }

func NewTerminalRepository(db *gorm.DB) TerminalRepository { return &terminalRepo{db: db} }

func (r *terminalRepo) Create(ctx context.Context, t *model.Terminal) error {
	return classify(r.db.WithContext(ctx).Create(t).Error)
}

func (r *terminalRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Terminal, error) {
	var t model.Terminal
	if err := conn(ctx, r.db, tx).First(&t, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &t, nil
}

func (r *terminalRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Terminal, error) {
	var t model.Terminal
	err := conn(ctx, r.db, tx).
		Clauses(noWait).
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &t, nil
}

func (r *terminalRepo) Update(ctx context.Context, tx *gorm.DB, t *model.Terminal) error {
	return classify(conn(ctx, r.db, tx).
		Model(t).
		Updates(map[string]any{
			"status":             t.Status,
			"current_cashier_id": t.CurrentCashierID,
			"updated_at":         gorm.Expr("NOW()"),
		}).Error)
}
