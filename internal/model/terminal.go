package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	TerminalClosed = "CLOSED"
	TerminalOpen   = "OPEN"
)

// Terminal is a physical POS device.
// CurrentCashierID is set if and only if Status is OPEN.
type Terminal struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name             string     `gorm:"not null"`
	LocationID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status           string     `gorm:"type:varchar(10);not null;default:'CLOSED'"`
	CurrentCashierID *uuid.UUID `gorm:"type:uuid"`
	UpdatedAt        time.Time
}

// Occupy marks the terminal OPEN under userID.
func (t *Terminal) Occupy(userID uuid.UUID) {
	t.Status = TerminalOpen
	t.CurrentCashierID = &userID
}

// Release marks the terminal CLOSED with no occupant.
func (t *Terminal) Release() {
	t.Status = TerminalClosed
	t.CurrentCashierID = nil
}

// OccupiedByOther reports whether the terminal is OPEN under someone other than userID.
func (t *Terminal) OccupiedByOther(userID uuid.UUID) bool {
	return t.Status == TerminalOpen && t.CurrentCashierID != nil && *t.CurrentCashierID != userID
}
