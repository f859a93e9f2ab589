package repository

import (
	"context"

	"vallenar/internal/model"

	"gorm.io/gorm"
)

// AuditRepository is append-only: no update, no delete.
type AuditRepository interface {
	// Create inserts inside tx when given, else on its own connection.
	Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLog) error
}

type auditRepo struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepo{db: db} }

func (r *auditRepo) Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLog) error {
	return classify(conn(ctx, r.db, tx).Create(entry).Error)
}
