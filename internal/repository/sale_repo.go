package repository

import (
	"context"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SaleRepository interface {
	// Create inserts the sale with its items and payments.
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	NextTicketNumber(ctx context.Context, tx *gorm.DB) (int, error)
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return classify(conn(ctx, r.db, tx).Create(s).Error)
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").First(&s, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *saleRepo) NextTicketNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	// Uses a PostgreSQL sequence for atomic ticket number generation
	var num int
	err := conn(ctx, r.db, tx).Raw("SELECT nextval('sales_ticket_number_seq')").Scan(&num).Error
	return num, classify(err)
}
