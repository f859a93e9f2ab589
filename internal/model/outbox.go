package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outbox statuses.
const (
	OutboxPending    = "pending"
	OutboxDispatched = "dispatched"
	OutboxDead       = "dead"
)

// OutboxEvent is written inside the business transaction and delivered
// asynchronously by the relay after commit.
type OutboxEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type          string         `gorm:"type:varchar(60);not null"`
	AggregateID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	Status        string         `gorm:"type:varchar(20);not null;default:'pending'"`
	Attempts      int            `gorm:"not null;default:0"`
	NextAttemptAt time.Time      `gorm:"not null;index"`
	LastError     *string
	DispatchedAt  *time.Time
	CreatedAt     time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }
