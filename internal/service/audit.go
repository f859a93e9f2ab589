package service

import (
	"context"
	"encoding/json"
	"time"

	"vallenar/internal/apierror"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit action codes.
const (
	ActionTerminalOpen           = "TERMINAL_OPEN"
	ActionTerminalClose          = "TERMINAL_CLOSE"
	ActionTerminalCloseNoSession = "TERMINAL_CLOSE_NO_SESSION"
	ActionTerminalForceClose     = "TERMINAL_FORCE_CLOSE"
	ActionSessionAutoClose       = "SESSION_AUTO_CLOSE"
	ActionTerminalView           = "TERMINAL_VIEW"
	ActionQuoteCreate            = "QUOTE_CREATE"
	ActionQuoteUpdate            = "QUOTE_UPDATE"
	ActionQuoteDiscount          = "QUOTE_DISCOUNT"
	ActionQuoteConvert           = "QUOTE_CONVERT"
	ActionQuoteCancel            = "QUOTE_CANCEL"
	ActionQuoteExpire            = "QUOTE_EXPIRE"
	ActionQuoteView              = "QUOTE_VIEW"
)

// Audited entity types.
const (
	EntityTerminal = "terminal"
	EntitySession  = "sesion_caja"
	EntityQuote    = "cotizacion"
)

// AuditEntry is one row of the trail before serialisation. Old and New are
// marshalled to JSON as given; nil leaves the column NULL.
type AuditEntry struct {
	ActorID       *uuid.UUID
	Action        string
	EntityType    string
	EntityID      string
	Old           any
	New           any
	Justification string
}

// AuditRecorder writes the audit trail.
type AuditRecorder interface {
	// Record inserts inside tx. A failure must abort the caller's transaction.
	Record(ctx context.Context, tx *gorm.DB, e AuditEntry) error
	// RecordBestEffort writes on its own connection and only logs failures.
	RecordBestEffort(ctx context.Context, e AuditEntry)
}

type auditRecorder struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewAuditRecorder(repo repository.AuditRepository) AuditRecorder {
	return &auditRecorder{repo: repo, now: time.Now}
}

func (r *auditRecorder) Record(ctx context.Context, tx *gorm.DB, e AuditEntry) error {
	row, err := r.build(e)
	if err != nil {
		return apierror.Infrastructure(err)
	}
	return r.repo.Create(ctx, tx, row)
}

func (r *auditRecorder) RecordBestEffort(ctx context.Context, e AuditEntry) {
	row, err := r.build(e)
	if err == nil {
		err = r.repo.Create(ctx, nil, row)
	}
	if err != nil {
		log.Warn().Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("audit: best-effort write failed")
	}
}

func (r *auditRecorder) build(e AuditEntry) (*model.AuditLog, error) {
	row := &model.AuditLog{
		ActorID:    e.ActorID,
		ActionCode: e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		CreatedAt:  r.now(),
	}
	var err error
	if row.OldValues, err = toJSON(e.Old); err != nil {
		return nil, err
	}
	if row.NewValues, err = toJSON(e.New); err != nil {
		return nil, err
	}
	if e.Justification != "" {
		j := e.Justification
		row.Justification = &j
	}
	return row, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func actor(id uuid.UUID) *uuid.UUID { return &id }
