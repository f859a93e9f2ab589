package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a staff member. AccessPin holds a bcrypt hash of the authorization
// PIN; rows migrated from the legacy system may still carry the plain PIN.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	Email        *string
	PasswordHash string  `gorm:"not null"`
	AccessPin    *string `gorm:"column:access_pin"`
	Role         Role    `gorm:"type:varchar(20);not null;index"`
	// LocationID is the branch the user normally works at; nil = any branch
	LocationID *uuid.UUID `gorm:"type:uuid"`
	Active     bool       `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
