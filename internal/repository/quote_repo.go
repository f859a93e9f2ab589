package repository

import (
	"context"
	"fmt"
	"time"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuoteRepository interface {
	// FindByID loads the quote with its items ordered by position.
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Quote, error)
	// LockByID takes FOR UPDATE NOWAIT on the header row and loads the items.
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Quote, error)
	NextCode(ctx context.Context, tx *gorm.DB) (string, error)
	Create(ctx context.Context, tx *gorm.DB, q *model.Quote) error
	// Update writes header columns only; items go through ReplaceItems.
	Update(ctx context.Context, tx *gorm.DB, q *model.Quote) error
	// ReplaceItems deletes every item of the quote and inserts items.
	ReplaceItems(ctx context.Context, tx *gorm.DB, quoteID uuid.UUID, items []model.QuoteItem) error
	// LockExpiredPending claims up to limit PENDING quotes past valid_until,
	// skipping rows another transaction holds.
	LockExpiredPending(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error)
	MarkExpired(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (int64, error)
}

type quoteRepo struct{ db *gorm.DB }

func NewQuoteRepository(db *gorm.DB) QuoteRepository { return &quoteRepo{db: db} }

func (r *quoteRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Quote, error) {
	var q model.Quote
	err := conn(ctx, r.db, tx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&q, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &q, nil
}

func (r *quoteRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Quote, error) {
	var q model.Quote
	db := conn(ctx, r.db, tx)
	if err := db.Clauses(noWait).First(&q, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	if err := db.Where("quote_id = ?", id).Order("position ASC").Find(&q.Items).Error; err != nil {
		return nil, classify(err)
	}
	return &q, nil
}

func (r *quoteRepo) NextCode(ctx context.Context, tx *gorm.DB) (string, error) {
	// PostgreSQL sequence keeps codes unique and gap-tolerant across concurrent creates
	var num int64
	if err := conn(ctx, r.db, tx).Raw("SELECT nextval('quotes_code_seq')").Scan(&num).Error; err != nil {
		return "", classify(err)
	}
	return fmt.Sprintf("COT-%06d", num), nil
}

func (r *quoteRepo) Create(ctx context.Context, tx *gorm.DB, q *model.Quote) error {
	return classify(conn(ctx, r.db, tx).Create(q).Error)
}

func (r *quoteRepo) Update(ctx context.Context, tx *gorm.DB, q *model.Quote) error {
	return classify(conn(ctx, r.db, tx).Omit(clause.Associations).Save(q).Error)
}

func (r *quoteRepo) ReplaceItems(ctx context.Context, tx *gorm.DB, quoteID uuid.UUID, items []model.QuoteItem) error {
	db := conn(ctx, r.db, tx)
	if err := db.Where("quote_id = ?", quoteID).Delete(&model.QuoteItem{}).Error; err != nil {
		return classify(err)
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].QuoteID = quoteID
	}
	return classify(db.Create(&items).Error)
}

func (r *quoteRepo) LockExpiredPending(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := conn(ctx, r.db, tx).Model(&model.Quote{}).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("status = ? AND valid_until < ?", model.QuotePending, now).
		Order("valid_until ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, classify(err)
}

func (r *quoteRepo) MarkExpired(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db, tx).Model(&model.Quote{}).
		Where("id IN ? AND status = ?", ids, model.QuotePending).
		Updates(map[string]any{"status": model.QuoteExpired, "updated_at": gorm.Expr("NOW()")})
	return res.RowsAffected, classify(res.Error)
}
