package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quote statuses. Transitions are one-way out of PENDING.
const (
	QuotePending   = "PENDING"
	QuoteConverted = "CONVERTED"
	QuoteExpired   = "EXPIRED"
	QuoteCancelled = "CANCELLED"
)

// Quote is a priced, time-boxed offer. Total == Subtotal - Discount always.
type Quote struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code       string     `gorm:"uniqueIndex;not null"` // COT-000123
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid;not null"`
	// Subtotal is the sum of item totals (item-level discounts already applied)
	Subtotal             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPercent      decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Discount             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total                decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountReason       *string
	DiscountAuthorizedBy *uuid.UUID `gorm:"type:uuid"`
	Status               string     `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Notes                *string
	CancelReason         *string
	ValidUntil           time.Time  `gorm:"not null;index"`
	SaleID               *uuid.UUID `gorm:"type:uuid"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Items []QuoteItem `gorm:"foreignKey:QuoteID"`
}

// IsPending reports whether the quote can still be mutated.
func (q *Quote) IsPending() bool { return q.Status == QuotePending }

// ExpiredAt reports whether the quote's validity window has passed at now.
func (q *Quote) ExpiredAt(now time.Time) bool { return now.After(q.ValidUntil) }

// QuoteItem is owned by a Quote and replaced wholesale on edits.
type QuoteItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	QuoteID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position        int             `gorm:"not null"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName     string          `gorm:"not null"`
	Quantity        int             `gorm:"not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
