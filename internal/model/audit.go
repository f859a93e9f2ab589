package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog is append-only. Rows are never updated or deleted.
type AuditLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ActorID       *uuid.UUID     `gorm:"type:uuid;index"`
	ActionCode    string         `gorm:"type:varchar(60);not null;index"`
	EntityType    string         `gorm:"type:varchar(40);not null"`
	EntityID      string         `gorm:"not null;index"`
	OldValues     datatypes.JSON `gorm:"type:jsonb"`
	NewValues     datatypes.JSON `gorm:"type:jsonb"`
	Justification *string
	CreatedAt     time.Time
}

func (AuditLog) TableName() string { return "audit_log" }
