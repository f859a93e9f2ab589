package service

import (
	"fmt"

	"vallenar/internal/apierror"
	"vallenar/internal/model"

	"github.com/google/uuid"
)

// Minimum length of the free-text justification on force-close and cancel.
const minJustificationLen = 10

var (
	ErrTerminalNotFound = apierror.E(apierror.KindNotFound, "terminal_not_found", "Terminal no encontrado")
	ErrTerminalLocked   = apierror.E(apierror.KindResourceBusy, "terminal_locked",
		"El terminal está siendo operado en otra transacción. Reintente en un momento.")
	ErrTerminalOccupied = apierror.E(apierror.KindStateConflict, "terminal_occupied_by_other",
		"El terminal está abierto por otro usuario")

	ErrQuoteNotFound   = apierror.E(apierror.KindNotFound, "quote_not_found", "Cotización no encontrada")
	ErrQuoteLocked     = apierror.E(apierror.KindResourceBusy, "quote_locked",
		"La cotización está siendo procesada en otra transacción. Reintente en un momento.")
	ErrQuoteNotPending = apierror.E(apierror.KindStateConflict, "quote_not_pending",
		"La cotización ya no está pendiente")
	ErrQuoteExpired = apierror.E(apierror.KindStateConflict, "quote_expired",
		"La cotización está vencida")
	ErrNoOpenSession = apierror.E(apierror.KindStateConflict, "no_open_session",
		"No hay una sesión de caja abierta para este terminal y usuario")

	ErrAuthorizationDenied = apierror.E(apierror.KindAuthorizationDenied, "authorization_denied",
		"Autorización denegada")
)

// TierRequiredError carries the tier a protected action needs. It travels as
// the cause of an AuthorizationDenied error; its text never names the tier.
type TierRequiredError struct {
	Tier model.Tier
}

func (e *TierRequiredError) Error() string { return "authorization tier required" }

func authorizationRequired(tier model.Tier) error {
	return apierror.Wrap(apierror.KindAuthorizationDenied, "authorization_required",
		"Esta operación requiere la autorización de un superior", &TierRequiredError{Tier: tier})
}

// InsufficientStockError identifies the quote line that could not be reserved.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%d)", e.ProductID, e.Requested)
}

func insufficientStock(item model.QuoteItem) error {
	return apierror.Wrap(apierror.KindInsufficientStock, "insufficient_stock",
		fmt.Sprintf("Stock insuficiente para %s (solicitado: %d)", item.ProductName, item.Quantity),
		&InsufficientStockError{ProductID: item.ProductID, ProductName: item.ProductName, Requested: item.Quantity})
}

// rekind replaces generic not-found / busy errors from the repositories with
// the entity-specific ones the caller expects.
func rekind(err error, notFound, busy *apierror.Error) error {
	switch apierror.KindOf(err) {
	case apierror.KindNotFound:
		if notFound != nil {
			return notFound
		}
	case apierror.KindResourceBusy:
		if busy != nil {
			return apierror.Wrap(busy.Kind, busy.Code, busy.Message, err)
		}
	}
	return err
}
