package service

import (
	"context"
	"encoding/json"
	"time"

	"vallenar/internal/apierror"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox event types delivered by the relay after commit.
const (
	EventTerminalOpened      = "terminal.opened"
	EventTerminalClosed      = "terminal.closed"
	EventTerminalForceClosed = "terminal.force_closed"
	EventRemittanceCreated   = "treasury.remittance_created"
	EventQuoteConverted      = "quote.converted"
)

// enqueue stores an event in the caller's transaction. Nothing is published
// until the transaction commits and the relay picks the row up.
func enqueue(ctx context.Context, repo repository.OutboxRepository, tx *gorm.DB, eventType string, aggregateID uuid.UUID, payload any) error {
	if repo == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return apierror.Infrastructure(err)
	}
	return repo.Enqueue(ctx, tx, &model.OutboxEvent{
		Type:          eventType,
		AggregateID:   aggregateID,
		Payload:       datatypes.JSON(b),
		Status:        model.OutboxPending,
		NextAttemptAt: time.Now(),
	})
}
