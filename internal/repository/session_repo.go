package repository

import (
	"context"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CashRegisterRepository covers sessions, the cash ledger and treasury remittances.
// Lock* methods use FOR UPDATE NOWAIT and return (nil, nil) when no row matches.
type CashRegisterRepository interface {
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error)
	FindOpenSession(ctx context.Context, tx *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error)
	FindOpenSessionByTerminal(ctx context.Context, terminalID uuid.UUID) (*model.CashRegisterSession, error)
	LockOpenSession(ctx context.Context, tx *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error)
	LockOpenSessionByTerminal(ctx context.Context, tx *gorm.DB, terminalID uuid.UUID) (*model.CashRegisterSession, error)
	// LockOpenSessionsByUser returns the user's OPEN sessions on terminals other than exceptTerminalID.
	LockOpenSessionsByUser(ctx context.Context, tx *gorm.DB, userID, exceptTerminalID uuid.UUID) ([]model.CashRegisterSession, error)
	CreateSession(ctx context.Context, tx *gorm.DB, s *model.CashRegisterSession) error
	UpdateSession(ctx context.Context, tx *gorm.DB, s *model.CashRegisterSession) error

	// Ledger: insert-only
	CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error
	// SumDrawerCash adds the opening float and cash sales of the session:
	// the amount that should physically be in the drawer.
	SumDrawerCash(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (decimal.Decimal, error)
	CreateRemittance(ctx context.Context, tx *gorm.DB, rem *model.TreasuryRemittance) error
}

type cashRegisterRepo struct{ db *gorm.DB }

func NewCashRegisterRepository(db *gorm.DB) CashRegisterRepository {
	return &cashRegisterRepo{db: db}
}

var noWait = clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsNoWait}

func (r *cashRegisterRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	var s model.CashRegisterSession
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *cashRegisterRepo) FindOpenSession(ctx context.Context, tx *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error) {
	var sessions []model.CashRegisterSession
	err := conn(ctx, r.db, tx).
		Where("terminal_id = ? AND user_id = ? AND status = ?", terminalID, userID, model.SessionOpen).
		Limit(1).Find(&sessions).Error
	return firstOrNil(sessions, err)
}

func (r *cashRegisterRepo) FindOpenSessionByTerminal(ctx context.Context, terminalID uuid.UUID) (*model.CashRegisterSession, error) {
	var sessions []model.CashRegisterSession
	err := r.db.WithContext(ctx).
		Where("terminal_id = ? AND status = ?", terminalID, model.SessionOpen).
		Limit(1).Find(&sessions).Error
	return firstOrNil(sessions, err)
}

func (r *cashRegisterRepo) LockOpenSession(ctx context.Context, tx *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error) {
	var sessions []model.CashRegisterSession
	err := conn(ctx, r.db, tx).Clauses(noWait).
		Where("terminal_id = ? AND user_id = ? AND status = ?", terminalID, userID, model.SessionOpen).
		Limit(1).Find(&sessions).Error
	return firstOrNil(sessions, err)
}

func (r *cashRegisterRepo) LockOpenSessionByTerminal(ctx context.Context, tx *gorm.DB, terminalID uuid.UUID) (*model.CashRegisterSession, error) {
	var sessions []model.CashRegisterSession
	err := conn(ctx, r.db, tx).Clauses(noWait).
		Where("terminal_id = ? AND status = ?", terminalID, model.SessionOpen).
		Order("opened_at DESC").
		Limit(1).Find(&sessions).Error
	return firstOrNil(sessions, err)
}

func (r *cashRegisterRepo) LockOpenSessionsByUser(ctx context.Context, tx *gorm.DB, userID, exceptTerminalID uuid.UUID) ([]model.CashRegisterSession, error) {
	var sessions []model.CashRegisterSession
	err := conn(ctx, r.db, tx).Clauses(noWait).
		Where("user_id = ? AND status = ? AND terminal_id <> ?", userID, model.SessionOpen, exceptTerminalID).
		Order("opened_at ASC").
		Find(&sessions).Error
	return sessions, classify(err)
}

func (r *cashRegisterRepo) CreateSession(ctx context.Context, tx *gorm.DB, s *model.CashRegisterSession) error {
	return classify(conn(ctx, r.db, tx).Create(s).Error)
}

func (r *cashRegisterRepo) UpdateSession(ctx context.Context, tx *gorm.DB, s *model.CashRegisterSession) error {
	return classify(conn(ctx, r.db, tx).Save(s).Error)
}

func (r *cashRegisterRepo) CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error {
	return classify(conn(ctx, r.db, tx).Create(m).Error)
}

func (r *cashRegisterRepo) SumDrawerCash(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := conn(ctx, r.db, tx).Model(&model.CashMovement{}).
		Select("SUM(amount)").
		Where("session_id = ? AND type IN ?", sessionID, []string{model.MovementApertura, model.MovementVenta}).
		Where("method IS NULL OR method = ?", model.PaymentEfectivo).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, classify(err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *cashRegisterRepo) CreateRemittance(ctx context.Context, tx *gorm.DB, rem *model.TreasuryRemittance) error {
	return classify(conn(ctx, r.db, tx).Create(rem).Error)
}

func firstOrNil[T any](rows []T, err error) (*T, error) {
	if err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
