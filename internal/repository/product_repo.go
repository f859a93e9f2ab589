package repository

import (
	"context"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository is read-mostly: quotes price from it, seeding writes to it.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	return classify(r.db.WithContext(ctx).Create(p).Error)
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (r *productRepo) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []model.Product
	err := r.db.WithContext(ctx).Where("id IN ? AND active = true", ids).Find(&products).Error
	return products, classify(err)
}
