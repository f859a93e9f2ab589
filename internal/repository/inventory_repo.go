package repository

import (
	"context"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStockChanged means a conditional decrement matched no row: the batch no
// longer holds the requested quantity.
var ErrStockChanged = ErrConstraint

type InventoryRepository interface {
	CreateBatch(ctx context.Context, b *model.InventoryBatch) error
	// LockBatchWithQuantity locks (NOWAIT) the first batch of productID holding at
	// least qty units, earliest expiry first. Returns (nil, nil) when none qualifies.
	LockBatchWithQuantity(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*model.InventoryBatch, error)
	// DecrementBatch subtracts qty only while quantity_real >= qty.
	DecrementBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int) error
	CreateStockMovement(ctx context.Context, tx *gorm.DB, m *model.StockMovement) error
	ListBatches(ctx context.Context, productID uuid.UUID) ([]model.InventoryBatch, error)
}

type inventoryRepo struct{ db *gorm.DB }

func NewInventoryRepository(db *gorm.DB) InventoryRepository { return &inventoryRepo{db: db} }

func (r *inventoryRepo) CreateBatch(ctx context.Context, b *model.InventoryBatch) error {
	return classify(r.db.WithContext(ctx).Create(b).Error)
}

func (r *inventoryRepo) LockBatchWithQuantity(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*model.InventoryBatch, error) {
	var batches []model.InventoryBatch
	err := conn(ctx, r.db, tx).Clauses(noWait).
		Where("product_id = ? AND quantity_real >= ?", productID, qty).
		Order("expiry_date ASC NULLS LAST").
		Order("created_at ASC").
		Limit(1).
		Find(&batches).Error
	return firstOrNil(batches, err)
}

func (r *inventoryRepo) DecrementBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, qty int) error {
	res := conn(ctx, r.db, tx).Model(&model.InventoryBatch{}).
		Where("id = ? AND quantity_real >= ?", batchID, qty).
		Updates(map[string]any{
			"quantity_real": gorm.Expr("quantity_real - ?", qty),
			"updated_at":    gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrStockChanged
	}
	return nil
}

func (r *inventoryRepo) CreateStockMovement(ctx context.Context, tx *gorm.DB, m *model.StockMovement) error {
	return classify(conn(ctx, r.db, tx).Create(m).Error)
}

func (r *inventoryRepo) ListBatches(ctx context.Context, productID uuid.UUID) ([]model.InventoryBatch, error) {
	var batches []model.InventoryBatch
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("expiry_date ASC NULLS LAST").
		Find(&batches).Error
	return batches, classify(err)
}
