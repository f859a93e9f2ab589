package repository

import (
	"context"
	"errors"

	"vallenar/internal/apierror"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the engines react to.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCheckViolation       = "23514"
	pgUniqueViolation      = "23505"
)

// Classified failures returned by every repository in this package.
var (
	ErrNotFound = apierror.E(apierror.KindNotFound, "not_found", "Registro no encontrado")
	ErrBusy     = apierror.E(apierror.KindResourceBusy, "resource_busy",
		"El recurso está siendo usado por otra operación. Reintente en un momento.")
	ErrSerialization = apierror.E(apierror.KindSerializationConflict, "serialization_conflict",
		"Conflicto de concurrencia. Reintente la operación.")
	ErrDeadlock = apierror.E(apierror.KindDeadlockDetected, "deadlock_detected",
		"Conflicto de concurrencia. Reintente la operación.")
	ErrConstraint = apierror.E(apierror.KindStateConflict, "constraint_violation",
		"La operación viola una restricción de integridad")
	ErrDuplicate = apierror.E(apierror.KindStateConflict, "duplicate",
		"El registro ya existe")
)

// classify maps driver and GORM errors onto the apierror taxonomy so services
// can branch on kinds without knowing about PostgreSQL.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierror.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return apierror.Wrap(ErrBusy.Kind, ErrBusy.Code, ErrBusy.Message, err)
		case pgSerializationFailure:
			return apierror.Wrap(ErrSerialization.Kind, ErrSerialization.Code, ErrSerialization.Message, err)
		case pgDeadlockDetected:
			return apierror.Wrap(ErrDeadlock.Kind, ErrDeadlock.Code, ErrDeadlock.Message, err)
		case pgCheckViolation:
			return apierror.Wrap(ErrConstraint.Kind, ErrConstraint.Code, ErrConstraint.Message, err)
		case pgUniqueViolation:
			return apierror.Wrap(ErrDuplicate.Kind, ErrDuplicate.Code, ErrDuplicate.Message, err)
		}
	}
	return apierror.Infrastructure(err)
}

// Classify is exported for callers that run raw statements outside a repository
// (the transaction runner's commit, for instance).
func Classify(err error) error { return classify(err) }

// conn returns the transaction handle when one is given, else the pool.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
