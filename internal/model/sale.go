package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is the immutable record created by converting a quote.
type Sale struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TicketNumber int             `gorm:"uniqueIndex;not null"`
	QuoteID      *uuid.UUID      `gorm:"type:uuid;index"`
	SessionID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	TerminalID   uuid.UUID       `gorm:"type:uuid;not null"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null"`
	CustomerID   *uuid.UUID      `gorm:"type:uuid"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Change       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt    time.Time

	Items    []SaleItem    `gorm:"foreignKey:SaleID"`
	Payments []SalePayment `gorm:"foreignKey:SaleID"`
}

// SaleItem copies a QuoteItem at conversion time.
type SaleItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null"`
	BatchID         uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName     string          `gorm:"not null"`
	Quantity        int             `gorm:"not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// Payment methods.
const (
	PaymentEfectivo      = "efectivo"
	PaymentDebito        = "debito"
	PaymentCredito       = "credito"
	PaymentTransferencia = "transferencia"
)

// PaymentMethods is the closed set accepted on conversion.
var PaymentMethods = []string{PaymentEfectivo, PaymentDebito, PaymentCredito, PaymentTransferencia}

type SalePayment struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method string          `gorm:"type:varchar(20);not null"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
