package model

import (
	"time"

	"github.com/google/uuid"
)

// InventoryBatch is a stock lot. QuantityReal >= 0 at all times; a CHECK
// constraint backs the conditional decrement in the repository.
type InventoryBatch struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	LocationID   *uuid.UUID `gorm:"type:uuid;index"`
	LotNumber    string     `gorm:"not null"`
	QuantityReal int        `gorm:"not null;default:0"`
	ExpiryDate   *time.Time `gorm:"type:date"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StockMovement records every change to a batch quantity.
type StockMovement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index"`
	BatchID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Type        string    `gorm:"not null"` // "venta_cotizacion" | "ajuste_manual"
	Quantity    int       `gorm:"not null"` // positive = entrada, negative = salida
	QuantityOld int       `gorm:"not null"`
	QuantityNew int       `gorm:"not null"`
	Reason      string
	ReferenceID *uuid.UUID `gorm:"type:uuid"` // sale_id
	CreatedAt   time.Time
}

const StockMovementQuoteSale = "venta_cotizacion"
