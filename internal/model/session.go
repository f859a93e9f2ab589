package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session statuses. OPEN is the only non-terminal one.
const (
	SessionOpen        = "OPEN"
	SessionClosed      = "CLOSED"
	SessionClosedAuto  = "CLOSED_AUTO"
	SessionClosedForce = "CLOSED_FORCE"
)

// CashRegisterSession is one cashier's custody of a terminal between open and close.
// It is mutated exactly once, on close; a closed session is never reopened.
type CashRegisterSession struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TerminalID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpeningAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// ExpectedAmount is computed on close: OpeningAmount + SUM(sales movements)
	ExpectedAmount *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ClosingAmount  *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Difference     *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// DifferenceClass: "normal" | "advertencia" | "critico"
	DifferenceClass *string `gorm:"type:varchar(20)"`
	Status          string  `gorm:"type:varchar(20);not null;default:'OPEN'"`
	Notes           *string
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

// Cash movement types.
const (
	MovementApertura = "APERTURA"
	MovementCierre   = "CIERRE"
	MovementRetiro   = "RETIRO"
	MovementVenta    = "VENTA"
)

// CashMovement is an immutable event in the cash register ledger.
// Movements are NEVER modified or deleted; corrections create inverse entries.
type CashMovement struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID  *uuid.UUID      `gorm:"type:uuid;index"`
	TerminalID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LocationID uuid.UUID       `gorm:"type:uuid;not null"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null"`
	Type       string          `gorm:"type:varchar(20);not null"`
	Method     *string         `gorm:"type:varchar(20)"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Note       string          `gorm:"not null"`
	// ReferenceID links to the originating sale or remittance
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}

const RemittancePendingReceipt = "PENDING_RECEIPT"

// TreasuryRemittance is cash that physically left a terminal on close and is
// pending receipt at the central treasury.
type TreasuryRemittance struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID  *uuid.UUID      `gorm:"type:uuid;index"`
	TerminalID uuid.UUID       `gorm:"type:uuid;not null"`
	LocationID uuid.UUID       `gorm:"type:uuid;not null"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status     string          `gorm:"type:varchar(20);not null;default:'PENDING_RECEIPT'"`
	CreatedAt  time.Time
}
