package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"vallenar/internal/apierror"
	"vallenar/internal/dto"
	"vallenar/internal/infra"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	maxValidDays     = 90
	expireBatchSize  = 200
	defaultValidDays = 7
)

// QuoteService drives the quote lifecycle: PENDING until it is converted,
// cancelled or expires. Every transition out of PENDING is final.
type QuoteService interface {
	Create(ctx context.Context, userID uuid.UUID, req dto.CrearCotizacionRequest) (*dto.CotizacionResponse, error)
	Update(ctx context.Context, id, userID uuid.UUID, req dto.ActualizarCotizacionRequest) (*dto.CotizacionResponse, error)
	ApplyDiscount(ctx context.Context, id, userID uuid.UUID, req dto.DescuentoRequest) (*dto.CotizacionResponse, error)
	ConvertToSale(ctx context.Context, id, userID uuid.UUID, req dto.ConvertirCotizacionRequest) (*dto.VentaResponse, error)
	Cancel(ctx context.Context, id, userID uuid.UUID, req dto.CancelarCotizacionRequest) (*dto.CotizacionResponse, error)
	// ExpireQuotes marks every overdue PENDING quote EXPIRED. Quotes locked by a
	// concurrent transaction are left for the next pass.
	ExpireQuotes(ctx context.Context) (*dto.ExpirarResponse, error)
	Get(ctx context.Context, id, viewerID uuid.UUID) (*dto.CotizacionResponse, error)
}

// QuoteDeps groups the collaborators of the quote engine.
type QuoteDeps struct {
	Tx          TxRunner
	Quotes      repository.QuoteRepository
	Inventory   repository.InventoryRepository
	Sales       repository.SaleRepository
	Cash        repository.CashRegisterRepository
	Terminals   repository.TerminalRepository
	Catalog     Catalog
	Authorizer  Authorizer
	Audit       AuditRecorder
	Outbox      repository.OutboxRepository
	DefaultDays int
}

type quoteService struct {
	QuoteDeps
	now func() time.Time
}

func NewQuoteService(deps QuoteDeps) QuoteService {
	if deps.DefaultDays <= 0 || deps.DefaultDays > maxValidDays {
		deps.DefaultDays = defaultValidDays
	}
	return &quoteService{QuoteDeps: deps, now: time.Now}
}

// ── Create ────────────────────────────────────────────────────────────────────

func (s *quoteService) Create(ctx context.Context, userID uuid.UUID, req dto.CrearCotizacionRequest) (*dto.CotizacionResponse, error) {
	days := req.DiasValidez
	if days == 0 {
		days = s.DefaultDays
	}
	if days < 1 || days > maxValidDays {
		return nil, apierror.Validation("Los días de validez deben estar entre 1 y 90")
	}
	customerID, err := parseOptionalUUID(req.ClienteID, "cliente_id")
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, apierror.Validation("La cotización debe tener al menos un ítem")
	}
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var q *model.Quote
	err = s.Tx.Run(ctx, "quote.create", func(tx *gorm.DB) error {
		code, err := s.Quotes.NextCode(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		q = &model.Quote{
			ID:              uuid.New(),
			Code:            code,
			CustomerID:      customerID,
			CreatedBy:       userID,
			DiscountPercent: decimal.Zero,
			Status:          model.QuotePending,
			Notes:           req.Notas,
			ValidUntil:      now.AddDate(0, 0, days),
			CreatedAt:       now,
			UpdatedAt:       now,
			Items:           cloneItems(items),
		}
		for i := range q.Items {
			q.Items[i].QuoteID = q.ID
		}
		recomputeTotals(q)
		if err := s.Quotes.Create(ctx, tx, q); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, AuditEntry{
			ActorID:    actor(userID),
			Action:     ActionQuoteCreate,
			EntityType: EntityQuote,
			EntityID:   q.ID.String(),
			New:        quoteTotals(q),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("quote_id", q.ID.String()).Str("code", q.Code).Str("user_id", userID.String()).Msg("quote created")
	return toCotizacionResponse(q), nil
}

// ── Update ────────────────────────────────────────────────────────────────────
// Items are replaced wholesale; nil fields are left untouched.

func (s *quoteService) Update(ctx context.Context, id, userID uuid.UUID, req dto.ActualizarCotizacionRequest) (*dto.CotizacionResponse, error) {
	if req.DiasValidez != nil && (*req.DiasValidez < 1 || *req.DiasValidez > maxValidDays) {
		return nil, apierror.Validation("Los días de validez deben estar entre 1 y 90")
	}
	var items []model.QuoteItem
	if req.Items != nil {
		if len(req.Items) == 0 {
			return nil, apierror.Validation("La cotización debe tener al menos un ítem")
		}
		var err error
		if items, err = s.buildItems(ctx, req.Items); err != nil {
			return nil, err
		}
	}

	q, err := s.mutate(ctx, "quote.update", id, userID, func(tx *gorm.DB, q *model.Quote) error {
		before := quoteTotals(q)
		if items != nil {
			q.Items = cloneItems(items)
			if err := s.Quotes.ReplaceItems(ctx, tx, q.ID, q.Items); err != nil {
				return err
			}
		}
		recomputeTotals(q)
		if req.Notas != nil {
			q.Notes = req.Notas
		}
		if req.DiasValidez != nil {
			q.ValidUntil = s.now().AddDate(0, 0, *req.DiasValidez)
		}
		q.UpdatedAt = s.now()
		if err := s.Quotes.Update(ctx, tx, q); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, AuditEntry{
			ActorID:    actor(userID),
			Action:     ActionQuoteUpdate,
			EntityType: EntityQuote,
			EntityID:   q.ID.String(),
			Old:        before,
			New:        quoteTotals(q),
		})
	})
	if err != nil {
		return nil, err
	}
	return toCotizacionResponse(q), nil
}

// ── ApplyDiscount ─────────────────────────────────────────────────────────────
// Tier and PIN are resolved before the quote is touched.

func (s *quoteService) ApplyDiscount(ctx context.Context, id, userID uuid.UUID, req dto.DescuentoRequest) (*dto.CotizacionResponse, error) {
	tier, err := s.Authorizer.RequiredTier(req.Porcentaje)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Motivo)
	if reason == "" {
		return nil, apierror.Validation("El motivo del descuento es obligatorio")
	}

	var auth *Authorization
	if tier != model.TierNone {
		pin := ""
		if req.Pin != nil {
			pin = strings.TrimSpace(*req.Pin)
		}
		if pin == "" {
			return nil, authorizationRequired(tier)
		}
		if auth, err = s.Authorizer.ValidatePin(ctx, pin, tier); err != nil {
			return nil, err
		}
	}

	percent := round2(req.Porcentaje)
	q, err := s.mutate(ctx, "quote.discount", id, userID, func(tx *gorm.DB, q *model.Quote) error {
		before := quoteTotals(q)
		q.DiscountPercent = percent
		q.Discount = percentOf(q.Subtotal, percent)
		q.Total = q.Subtotal.Sub(q.Discount)
		q.DiscountReason = &reason
		q.DiscountAuthorizedBy = nil
		after := quoteTotals(q)
		if auth != nil {
			q.DiscountAuthorizedBy = &auth.UserID
			after["autorizado_por"] = auth.UserID
			after["autorizador"] = auth.Name
			after["autorizador_rol"] = auth.Role
		}
		q.UpdatedAt = s.now()
		if err := s.Quotes.Update(ctx, tx, q); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, AuditEntry{
			ActorID:       actor(userID),
			Action:        ActionQuoteDiscount,
			EntityType:    EntityQuote,
			EntityID:      q.ID.String(),
			Old:           before,
			New:           after,
			Justification: reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return toCotizacionResponse(q), nil
}

// ── ConvertToSale ─────────────────────────────────────────────────────────────
// Stock is reserved per item in position order: lock a batch holding the full
// quantity, decrement it, record the kardex entry. Any failure rolls back the
// whole conversion.

func (s *quoteService) ConvertToSale(ctx context.Context, id, userID uuid.UUID, req dto.ConvertirCotizacionRequest) (*dto.VentaResponse, error) {
	terminalID, err := uuid.Parse(req.TerminalID)
	if err != nil {
		return nil, apierror.Validation("terminal_id inválido")
	}
	if len(req.Pagos) == 0 {
		return nil, apierror.Validation("Debe informar al menos un pago")
	}
	paid := decimal.Zero
	nonCash := decimal.Zero
	for _, p := range req.Pagos {
		if !validPaymentMethod(p.Metodo) {
			return nil, apierror.Validation(fmt.Sprintf("Método de pago inválido: %s", p.Metodo))
		}
		if !p.Monto.IsPositive() {
			return nil, apierror.Validation("Los montos de pago deben ser positivos")
		}
		paid = paid.Add(p.Monto)
		if p.Metodo != model.PaymentEfectivo {
			nonCash = nonCash.Add(p.Monto)
		}
	}
	if _, err := s.Quotes.FindByID(ctx, nil, id); err != nil {
		return nil, rekind(err, ErrQuoteNotFound, nil)
	}

	var (
		sale    *model.Sale
		expired bool
	)
	err = s.Tx.Run(ctx, "quote.convert", func(tx *gorm.DB) error {
		sale, expired = nil, false

		q, err := s.Quotes.LockByID(ctx, tx, id)
		if err != nil {
			return rekind(err, ErrQuoteNotFound, ErrQuoteLocked)
		}
		if !q.IsPending() {
			return ErrQuoteNotPending
		}
		now := s.now()
		if q.ExpiredAt(now) {
			expired = true
			return s.expireLocked(ctx, tx, q, &userID)
		}

		if paid.LessThan(q.Total) {
			return apierror.Validation(fmt.Sprintf("Pago insuficiente: total %s, pagado %s", q.Total.StringFixed(2), paid.StringFixed(2)))
		}
		if nonCash.GreaterThan(q.Total) {
			return apierror.Validation("Los pagos que no son en efectivo no pueden superar el total")
		}
		change := paid.Sub(q.Total)

		sess, err := s.Cash.FindOpenSession(ctx, tx, terminalID, userID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrNoOpenSession
		}
		term, err := s.Terminals.FindByID(ctx, tx, terminalID)
		if err != nil {
			return rekind(err, ErrTerminalNotFound, nil)
		}

		saleID := uuid.New()
		saleItems := make([]model.SaleItem, 0, len(q.Items))
		for _, it := range q.Items {
			batch, err := s.Inventory.LockBatchWithQuantity(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if batch == nil {
				return insufficientStock(it)
			}
			if err := s.Inventory.DecrementBatch(ctx, tx, batch.ID, it.Quantity); err != nil {
				if errors.Is(err, repository.ErrStockChanged) {
					return insufficientStock(it)
				}
				return err
			}
			if err := s.Inventory.CreateStockMovement(ctx, tx, &model.StockMovement{
				ID:          uuid.New(),
				ProductID:   it.ProductID,
				BatchID:     batch.ID,
				Type:        model.StockMovementQuoteSale,
				Quantity:    -it.Quantity,
				QuantityOld: batch.QuantityReal,
				QuantityNew: batch.QuantityReal - it.Quantity,
				Reason:      "Venta de cotización " + q.Code,
				ReferenceID: &saleID,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			saleItems = append(saleItems, model.SaleItem{
				ID:              uuid.New(),
				SaleID:          saleID,
				ProductID:       it.ProductID,
				BatchID:         batch.ID,
				ProductName:     it.ProductName,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				DiscountPercent: it.DiscountPercent,
				Total:           it.Total,
			})
		}

		ticket, err := s.Sales.NextTicketNumber(ctx, tx)
		if err != nil {
			return err
		}
		quoteID := q.ID
		sale = &model.Sale{
			ID:           saleID,
			TicketNumber: ticket,
			QuoteID:      &quoteID,
			SessionID:    sess.ID,
			TerminalID:   terminalID,
			UserID:       userID,
			CustomerID:   q.CustomerID,
			Subtotal:     q.Subtotal,
			Discount:     q.Discount,
			Total:        q.Total,
			Change:       change,
			CreatedAt:    now,
			Items:        saleItems,
		}
		for _, p := range req.Pagos {
			sale.Payments = append(sale.Payments, model.SalePayment{ID: uuid.New(), SaleID: saleID, Method: p.Metodo, Amount: round2(p.Monto)})
		}
		if err := s.Sales.Create(ctx, tx, sale); err != nil {
			return err
		}

		byMethod := make(map[string]decimal.Decimal, len(model.PaymentMethods))
		for _, p := range req.Pagos {
			byMethod[p.Metodo] = byMethod[p.Metodo].Add(round2(p.Monto))
		}
		byMethod[model.PaymentEfectivo] = byMethod[model.PaymentEfectivo].Sub(change)
		for _, m := range model.PaymentMethods {
			amount := byMethod[m]
			if !amount.IsPositive() {
				continue
			}
			method := m
			if err := s.Cash.CreateMovement(ctx, tx, &model.CashMovement{
				ID:          uuid.New(),
				SessionID:   &sess.ID,
				TerminalID:  terminalID,
				LocationID:  term.LocationID,
				UserID:      userID,
				Type:        model.MovementVenta,
				Method:      &method,
				Amount:      amount,
				Note:        fmt.Sprintf("Venta #%d (%s)", ticket, q.Code),
				ReferenceID: &saleID,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		before := quoteTotals(q)
		q.Status = model.QuoteConverted
		q.SaleID = &saleID
		q.UpdatedAt = now
		if err := s.Quotes.Update(ctx, tx, q); err != nil {
			return err
		}
		after := quoteTotals(q)
		after["venta_id"] = saleID
		after["numero_ticket"] = ticket
		after["terminal_id"] = terminalID
		if err := s.Audit.Record(ctx, tx, AuditEntry{
			ActorID:    actor(userID),
			Action:     ActionQuoteConvert,
			EntityType: EntityQuote,
			EntityID:   q.ID.String(),
			Old:        before,
			New:        after,
		}); err != nil {
			return err
		}
		return enqueue(ctx, s.Outbox, tx, EventQuoteConverted, q.ID, map[string]any{
			"cotizacion_id": q.ID,
			"codigo":        q.Code,
			"venta_id":      saleID,
			"numero_ticket": ticket,
			"total":         q.Total,
			"terminal_id":   terminalID,
		})
	})
	if err != nil {
		return nil, err
	}
	if expired {
		infra.QuotesExpired.Inc()
		return nil, ErrQuoteExpired
	}

	log.Info().
		Str("quote_id", id.String()).
		Str("sale_id", sale.ID.String()).
		Int("ticket", sale.TicketNumber).
		Str("user_id", userID.String()).
		Msg("quote converted")

	return &dto.VentaResponse{
		ID:           sale.ID.String(),
		NumeroTicket: sale.TicketNumber,
		CotizacionID: id.String(),
		Total:        sale.Total,
		Vuelto:       sale.Change,
	}, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────

func (s *quoteService) Cancel(ctx context.Context, id, userID uuid.UUID, req dto.CancelarCotizacionRequest) (*dto.CotizacionResponse, error) {
	reason := strings.TrimSpace(req.Motivo)
	if utf8.RuneCountInString(reason) < minJustificationLen {
		return nil, apierror.Validation("El motivo de cancelación debe tener al menos 10 caracteres")
	}

	q, err := s.mutate(ctx, "quote.cancel", id, userID, func(tx *gorm.DB, q *model.Quote) error {
		q.Status = model.QuoteCancelled
		q.CancelReason = &reason
		q.UpdatedAt = s.now()
		if err := s.Quotes.Update(ctx, tx, q); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, AuditEntry{
			ActorID:       actor(userID),
			Action:        ActionQuoteCancel,
			EntityType:    EntityQuote,
			EntityID:      q.ID.String(),
			Old:           map[string]any{"estado": model.QuotePending},
			New:           map[string]any{"estado": q.Status},
			Justification: reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return toCotizacionResponse(q), nil
}

// ── ExpireQuotes ──────────────────────────────────────────────────────────────

func (s *quoteService) ExpireQuotes(ctx context.Context) (*dto.ExpirarResponse, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return &dto.ExpirarResponse{Expiradas: total}, apierror.Infrastructure(err)
		}
		var claimed int
		var marked int64
		err := s.Tx.Run(ctx, "quote.expire", func(tx *gorm.DB) error {
			ids, err := s.Quotes.LockExpiredPending(ctx, tx, s.now(), expireBatchSize)
			if err != nil {
				return err
			}
			claimed = len(ids)
			if marked, err = s.Quotes.MarkExpired(ctx, tx, ids); err != nil {
				return err
			}
			for _, id := range ids {
				if err := s.Audit.Record(ctx, tx, AuditEntry{
					Action:     ActionQuoteExpire,
					EntityType: EntityQuote,
					EntityID:   id.String(),
					Old:        map[string]any{"estado": model.QuotePending},
					New:        map[string]any{"estado": model.QuoteExpired},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return &dto.ExpirarResponse{Expiradas: total}, err
		}
		total += marked
		if claimed < expireBatchSize {
			break
		}
	}

	if total > 0 {
		infra.QuotesExpired.Add(float64(total))
		log.Info().Int64("expired", total).Msg("quote expiry sweep")
	}
	return &dto.ExpirarResponse{Expiradas: total}, nil
}

// ── Get ───────────────────────────────────────────────────────────────────────
// An overdue PENDING quote is expired on read when its row is free.

func (s *quoteService) Get(ctx context.Context, id, viewerID uuid.UUID) (*dto.CotizacionResponse, error) {
	q, err := s.Quotes.FindByID(ctx, nil, id)
	if err != nil {
		return nil, rekind(err, ErrQuoteNotFound, nil)
	}

	if q.IsPending() && q.ExpiredAt(s.now()) {
		var done bool
		err := s.Tx.Run(ctx, "quote.expire", func(tx *gorm.DB) error {
			done = false
			locked, err := s.Quotes.LockByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if !locked.IsPending() || !locked.ExpiredAt(s.now()) {
				return nil
			}
			done = true
			return s.expireLocked(ctx, tx, locked, &viewerID)
		})
		switch {
		case err == nil && done:
			infra.QuotesExpired.Inc()
			q.Status = model.QuoteExpired
		case apierror.IsTransient(err):
			log.Debug().Str("quote_id", id.String()).Msg("lazy expiry skipped: quote busy")
		case err != nil:
			return nil, err
		}
	}

	s.Audit.RecordBestEffort(ctx, AuditEntry{
		ActorID:    actor(viewerID),
		Action:     ActionQuoteView,
		EntityType: EntityQuote,
		EntityID:   id.String(),
	})
	return toCotizacionResponse(q), nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// mutate runs fn on the locked quote when it is still PENDING and within its
// validity window. An overdue quote is marked EXPIRED, that change alone is
// committed and ErrQuoteExpired is returned.
func (s *quoteService) mutate(ctx context.Context, op string, id, userID uuid.UUID, fn func(tx *gorm.DB, q *model.Quote) error) (*model.Quote, error) {
	if _, err := s.Quotes.FindByID(ctx, nil, id); err != nil {
		return nil, rekind(err, ErrQuoteNotFound, nil)
	}

	var (
		out     *model.Quote
		expired bool
	)
	err := s.Tx.Run(ctx, op, func(tx *gorm.DB) error {
		out, expired = nil, false
		q, err := s.Quotes.LockByID(ctx, tx, id)
		if err != nil {
			return rekind(err, ErrQuoteNotFound, ErrQuoteLocked)
		}
		if !q.IsPending() {
			return ErrQuoteNotPending
		}
		if q.ExpiredAt(s.now()) {
			expired = true
			return s.expireLocked(ctx, tx, q, &userID)
		}
		if err := fn(tx, q); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		infra.QuotesExpired.Inc()
		return nil, ErrQuoteExpired
	}
	return out, nil
}

func (s *quoteService) expireLocked(ctx context.Context, tx *gorm.DB, q *model.Quote, actorID *uuid.UUID) error {
	if _, err := s.Quotes.MarkExpired(ctx, tx, []uuid.UUID{q.ID}); err != nil {
		return err
	}
	q.Status = model.QuoteExpired
	log.Info().Str("quote_id", q.ID.String()).Time("valid_until", q.ValidUntil).Msg("quote expired on access")
	return s.Audit.Record(ctx, tx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionQuoteExpire,
		EntityType: EntityQuote,
		EntityID:   q.ID.String(),
		Old:        map[string]any{"estado": model.QuotePending, "valida_hasta": q.ValidUntil},
		New:        map[string]any{"estado": model.QuoteExpired},
	})
}

// buildItems validates item requests and prices them from the catalog.
func (s *quoteService) buildItems(ctx context.Context, reqs []dto.CotizacionItemRequest) ([]model.QuoteItem, error) {
	ids := make([]uuid.UUID, len(reqs))
	for i, r := range reqs {
		id, err := uuid.Parse(r.ProductoID)
		if err != nil {
			return nil, apierror.Validation(fmt.Sprintf("producto_id inválido en ítem %d", i+1))
		}
		if r.Cantidad < 1 {
			return nil, apierror.Validation(fmt.Sprintf("La cantidad del ítem %d debe ser mayor a cero", i+1))
		}
		if r.DescuentoPct.IsNegative() || r.DescuentoPct.GreaterThan(maxItemDiscount) {
			return nil, apierror.Validation(fmt.Sprintf("El descuento del ítem %d debe estar entre 0 y 10%%", i+1))
		}
		ids[i] = id
	}

	products, err := s.Catalog.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]model.QuoteItem, len(reqs))
	for i, r := range reqs {
		p, ok := products[ids[i]]
		if !ok {
			return nil, apierror.E(apierror.KindNotFound, "product_not_found",
				fmt.Sprintf("Producto no encontrado o inactivo: %s", ids[i]))
		}
		items[i] = model.QuoteItem{
			Position:        i + 1,
			ProductID:       p.ID,
			ProductName:     p.Name,
			Quantity:        r.Cantidad,
			UnitPrice:       p.Price,
			DiscountPercent: round2(r.DescuentoPct),
		}
		priceLine(&items[i])
	}
	return items, nil
}

// cloneItems copies items with fresh ids so a retried transaction never
// reuses rows from a rolled-back attempt.
func cloneItems(items []model.QuoteItem) []model.QuoteItem {
	out := make([]model.QuoteItem, len(items))
	for i, it := range items {
		it.ID = uuid.New()
		out[i] = it
	}
	return out
}

func parseOptionalUUID(s *string, field string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apierror.Validation(field + " inválido")
	}
	return &id, nil
}

func validPaymentMethod(m string) bool {
	for _, pm := range model.PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

func quoteTotals(q *model.Quote) map[string]any {
	return map[string]any{
		"estado":        q.Status,
		"subtotal":      q.Subtotal,
		"descuento_pct": q.DiscountPercent,
		"descuento":     q.Discount,
		"total":         q.Total,
		"items":         len(q.Items),
	}
}

func toCotizacionResponse(q *model.Quote) *dto.CotizacionResponse {
	r := &dto.CotizacionResponse{
		ID:              q.ID.String(),
		Codigo:          q.Code,
		Estado:          q.Status,
		Subtotal:        q.Subtotal,
		DescuentoPct:    q.DiscountPercent,
		Descuento:       q.Discount,
		Total:           q.Total,
		MotivoDescuento: q.DiscountReason,
		ValidaHasta:     q.ValidUntil.Format(time.RFC3339),
		Notas:           q.Notes,
		Items:           make([]dto.CotizacionItemResponse, 0, len(q.Items)),
	}
	if q.CustomerID != nil {
		c := q.CustomerID.String()
		r.ClienteID = &c
	}
	if q.DiscountAuthorizedBy != nil {
		a := q.DiscountAuthorizedBy.String()
		r.AutorizadoPor = &a
	}
	if q.SaleID != nil {
		v := q.SaleID.String()
		r.VentaID = &v
	}
	for _, it := range q.Items {
		r.Items = append(r.Items, dto.CotizacionItemResponse{
			Posicion:       it.Position,
			ProductoID:     it.ProductID.String(),
			Producto:       it.ProductName,
			Cantidad:       it.Quantity,
			PrecioUnitario: it.UnitPrice,
			DescuentoPct:   it.DiscountPercent,
			Subtotal:       it.Subtotal,
			Total:          it.Total,
		})
	}
	return r
}
