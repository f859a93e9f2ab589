package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"vallenar/internal/apierror"
	"vallenar/internal/dto"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TerminalService drives the terminal / cash-register session state machine.
type TerminalService interface {
	Open(ctx context.Context, terminalID, userID uuid.UUID, req dto.AbrirTerminalRequest) (*dto.AperturaResponse, error)
	Close(ctx context.Context, terminalID, userID uuid.UUID, req dto.CerrarTerminalRequest) (*dto.CierreResponse, error)
	ForceClose(ctx context.Context, terminalID, adminID uuid.UUID, req dto.ForzarCierreRequest) (*dto.CierreResponse, error)
	Get(ctx context.Context, terminalID, viewerID uuid.UUID) (*dto.TerminalResponse, error)
}

type terminalService struct {
	tx        TxRunner
	terminals repository.TerminalRepository
	cash      repository.CashRegisterRepository
	audit     AuditRecorder
	outbox    repository.OutboxRepository
	now       func() time.Time
	// busyWait is the base delay between idempotency re-checks after a
	// concurrent open held the terminal lock.
	busyWait time.Duration
}

func NewTerminalService(
	tx TxRunner,
	terminals repository.TerminalRepository,
	cash repository.CashRegisterRepository,
	audit AuditRecorder,
	outbox repository.OutboxRepository,
) TerminalService {
	return &terminalService{
		tx:        tx,
		terminals: terminals,
		cash:      cash,
		audit:     audit,
		outbox:    outbox,
		now:       time.Now,
		busyWait:  50 * time.Millisecond,
	}
}

// ── Open ──────────────────────────────────────────────────────────────────────
// Re-opening the same (terminal, user) pair returns the existing session.

func (s *terminalService) Open(ctx context.Context, terminalID, userID uuid.UUID, req dto.AbrirTerminalRequest) (*dto.AperturaResponse, error) {
	if terminalID == uuid.Nil || userID == uuid.Nil {
		return nil, apierror.Validation("Identificador de terminal o usuario inválido")
	}
	if req.MontoInicial.IsNegative() {
		return nil, apierror.Validation("El monto inicial no puede ser negativo")
	}
	if _, err := s.terminals.FindByID(ctx, nil, terminalID); err != nil {
		return nil, rekind(err, ErrTerminalNotFound, nil)
	}

	existing, err := s.cash.FindOpenSession(ctx, nil, terminalID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.AperturaResponse{SesionID: existing.ID.String(), Reutilizada: true}, nil
	}

	var resp *dto.AperturaResponse
	err = s.tx.Run(ctx, "terminal.open", func(tx *gorm.DB) error {
		r, err := s.openTx(ctx, tx, terminalID, userID, round2(req.MontoInicial))
		resp = r
		return err
	})
	if err == nil {
		return resp, nil
	}

	// A concurrent open of the same pair may hold the lock; once it commits,
	// this call is a repeat and gets the same session.
	if apierror.KindOf(err) == apierror.KindResourceBusy || errors.Is(err, repository.ErrDuplicate) {
		if sess := s.awaitOpenSession(ctx, terminalID, userID); sess != nil {
			return &dto.AperturaResponse{SesionID: sess.ID.String(), Reutilizada: true}, nil
		}
	}
	return nil, err
}

func (s *terminalService) openTx(ctx context.Context, tx *gorm.DB, terminalID, userID uuid.UUID, amount decimal.Decimal) (*dto.AperturaResponse, error) {
	term, err := s.terminals.LockByID(ctx, tx, terminalID)
	if err != nil {
		return nil, rekind(err, ErrTerminalNotFound, ErrTerminalLocked)
	}

	existing, err := s.cash.FindOpenSession(ctx, tx, terminalID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.AperturaResponse{SesionID: existing.ID.String(), Reutilizada: true}, nil
	}
	if term.OccupiedByOther(userID) {
		return nil, ErrTerminalOccupied
	}

	now := s.now()
	resp := &dto.AperturaResponse{}

	// Ghost cleanup: the user's sessions on other terminals, then any session
	// left OPEN on this terminal by someone who no longer occupies it.
	ghosts, err := s.cash.LockOpenSessionsByUser(ctx, tx, userID, terminalID)
	if err != nil {
		return nil, rekind(err, nil, ErrTerminalLocked)
	}
	for i := range ghosts {
		note := "Cerrada automáticamente: el usuario abrió otro terminal"
		if err := s.autoClose(ctx, tx, &ghosts[i], userID, now, note, true); err != nil {
			return nil, err
		}
		resp.SesionesAutoCerradas = append(resp.SesionesAutoCerradas, ghosts[i].ID.String())
	}
	orphan, err := s.cash.LockOpenSessionByTerminal(ctx, tx, terminalID)
	if err != nil {
		return nil, rekind(err, nil, ErrTerminalLocked)
	}
	if orphan != nil {
		note := "Cerrada automáticamente: sesión huérfana en el terminal"
		if err := s.autoClose(ctx, tx, orphan, userID, now, note, false); err != nil {
			return nil, err
		}
		resp.SesionesAutoCerradas = append(resp.SesionesAutoCerradas, orphan.ID.String())
	}

	before := terminalSnapshot(term)

	sess := &model.CashRegisterSession{
		ID:            uuid.New(),
		TerminalID:    terminalID,
		UserID:        userID,
		OpeningAmount: amount,
		Status:        model.SessionOpen,
		OpenedAt:      now,
	}
	if err := s.cash.CreateSession(ctx, tx, sess); err != nil {
		return nil, err
	}
	if err := s.cash.CreateMovement(ctx, tx, &model.CashMovement{
		ID:         uuid.New(),
		SessionID:  &sess.ID,
		TerminalID: terminalID,
		LocationID: term.LocationID,
		UserID:     userID,
		Type:       model.MovementApertura,
		Amount:     amount,
		Note:       "Apertura de caja",
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	term.Occupy(userID)
	term.UpdatedAt = now
	if err := s.terminals.Update(ctx, tx, term); err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, tx, AuditEntry{
		ActorID:    actor(userID),
		Action:     ActionTerminalOpen,
		EntityType: EntityTerminal,
		EntityID:   terminalID.String(),
		Old:        before,
		New: map[string]any{
			"estado":        term.Status,
			"cajero_actual": userID,
			"sesion_id":     sess.ID,
			"monto_inicial": amount,
		},
	}); err != nil {
		return nil, err
	}
	if err := enqueue(ctx, s.outbox, tx, EventTerminalOpened, terminalID, map[string]any{
		"terminal_id":   terminalID,
		"sesion_id":     sess.ID,
		"usuario_id":    userID,
		"monto_inicial": amount,
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("terminal_id", terminalID.String()).
		Str("session_id", sess.ID.String()).
		Str("user_id", userID.String()).
		Int("ghosts_closed", len(resp.SesionesAutoCerradas)).
		Msg("terminal opened")

	resp.SesionID = sess.ID.String()
	return resp, nil
}

// autoClose moves a ghost session to CLOSED_AUTO. With releaseTerminal set,
// the ghost's terminal is freed when its owner still occupies it.
func (s *terminalService) autoClose(ctx context.Context, tx *gorm.DB, sess *model.CashRegisterSession, actorID uuid.UUID, now time.Time, note string, releaseTerminal bool) error {
	sess.Status = model.SessionClosedAuto
	sess.ClosedAt = &now
	sess.Notes = &note
	if err := s.cash.UpdateSession(ctx, tx, sess); err != nil {
		return err
	}

	if releaseTerminal {
		term, err := s.terminals.LockByID(ctx, tx, sess.TerminalID)
		if err != nil {
			return rekind(err, nil, ErrTerminalLocked)
		}
		if term.CurrentCashierID != nil && *term.CurrentCashierID == sess.UserID {
			term.Release()
			term.UpdatedAt = now
			if err := s.terminals.Update(ctx, tx, term); err != nil {
				return err
			}
		}
	}

	log.Warn().
		Str("session_id", sess.ID.String()).
		Str("terminal_id", sess.TerminalID.String()).
		Str("user_id", sess.UserID.String()).
		Msg("ghost session auto-closed")

	return s.audit.Record(ctx, tx, AuditEntry{
		ActorID:    actor(actorID),
		Action:     ActionSessionAutoClose,
		EntityType: EntitySession,
		EntityID:   sess.ID.String(),
		Old:        map[string]any{"estado": model.SessionOpen, "usuario_id": sess.UserID, "terminal_id": sess.TerminalID},
		New:        map[string]any{"estado": sess.Status, "nota": note},
	})
}

func (s *terminalService) awaitOpenSession(ctx context.Context, terminalID, userID uuid.UUID) *model.CashRegisterSession {
	for i := 1; i <= 3; i++ {
		t := time.NewTimer(s.busyWait * time.Duration(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		sess, err := s.cash.FindOpenSession(ctx, nil, terminalID, userID)
		if err == nil && sess != nil {
			return sess
		}
	}
	return nil
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Closing without an OPEN session is tolerated and audited as a discrepancy.

func (s *terminalService) Close(ctx context.Context, terminalID, userID uuid.UUID, req dto.CerrarTerminalRequest) (*dto.CierreResponse, error) {
	if terminalID == uuid.Nil || userID == uuid.Nil {
		return nil, apierror.Validation("Identificador de terminal o usuario inválido")
	}
	if req.MontoFinal.IsNegative() || req.MontoRetiro.IsNegative() {
		return nil, apierror.Validation("Los montos no pueden ser negativos")
	}
	if req.MontoRetiro.GreaterThan(req.MontoFinal) {
		return nil, apierror.Validation("El retiro no puede superar el monto final")
	}
	if _, err := s.terminals.FindByID(ctx, nil, terminalID); err != nil {
		return nil, rekind(err, ErrTerminalNotFound, nil)
	}

	final := round2(req.MontoFinal)
	withdrawal := round2(req.MontoRetiro)

	var resp *dto.CierreResponse
	err := s.tx.Run(ctx, "terminal.close", func(tx *gorm.DB) error {
		term, err := s.terminals.LockByID(ctx, tx, terminalID)
		if err != nil {
			return rekind(err, ErrTerminalNotFound, ErrTerminalLocked)
		}
		if term.OccupiedByOther(userID) {
			return ErrTerminalOccupied
		}
		sess, err := s.cash.LockOpenSession(ctx, tx, terminalID, userID)
		if err != nil {
			return rekind(err, nil, ErrTerminalLocked)
		}

		now := s.now()
		before := terminalSnapshot(term)
		r := &dto.CierreResponse{TerminalID: terminalID.String()}
		var sessionID *uuid.UUID

		if sess != nil {
			expected, err := s.cash.SumDrawerCash(ctx, tx, sess.ID)
			if err != nil {
				return err
			}
			diff := final.Sub(expected)
			class := classifyDeviation(deviationPercent(expected, final))
			sess.ExpectedAmount = &expected
			sess.ClosingAmount = &final
			sess.Difference = &diff
			sess.DifferenceClass = &class
			sess.Status = model.SessionClosed
			sess.ClosedAt = &now
			sess.Notes = req.Observaciones
			if err := s.cash.UpdateSession(ctx, tx, sess); err != nil {
				return err
			}
			sessionID = &sess.ID
			r.Sesion = toSesionResponse(sess)
		} else {
			log.Warn().
				Str("terminal_id", terminalID.String()).
				Str("user_id", userID.String()).
				Msg("terminal closed without an open session")
			r.SinSesion = true
		}

		if err := s.cash.CreateMovement(ctx, tx, &model.CashMovement{
			ID:         uuid.New(),
			SessionID:  sessionID,
			TerminalID: terminalID,
			LocationID: term.LocationID,
			UserID:     userID,
			Type:       model.MovementCierre,
			Amount:     final,
			Note:       "Cierre de caja",
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		if withdrawal.IsPositive() {
			rem := &model.TreasuryRemittance{
				ID:         uuid.New(),
				SessionID:  sessionID,
				TerminalID: terminalID,
				LocationID: term.LocationID,
				UserID:     userID,
				Amount:     withdrawal,
				Status:     model.RemittancePendingReceipt,
				CreatedAt:  now,
			}
			if err := s.cash.CreateRemittance(ctx, tx, rem); err != nil {
				return err
			}
			if err := s.cash.CreateMovement(ctx, tx, &model.CashMovement{
				ID:          uuid.New(),
				SessionID:   sessionID,
				TerminalID:  terminalID,
				LocationID:  term.LocationID,
				UserID:      userID,
				Type:        model.MovementRetiro,
				Amount:      withdrawal.Neg(),
				Note:        "Retiro a tesorería",
				ReferenceID: &rem.ID,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			if err := enqueue(ctx, s.outbox, tx, EventRemittanceCreated, rem.ID, map[string]any{
				"remesa_id":   rem.ID,
				"terminal_id": terminalID,
				"sucursal_id": term.LocationID,
				"monto":       withdrawal,
			}); err != nil {
				return err
			}
			remID := rem.ID.String()
			r.RemesaID = &remID
		}

		term.Release()
		term.UpdatedAt = now
		if err := s.terminals.Update(ctx, tx, term); err != nil {
			return err
		}

		entry := AuditEntry{
			ActorID:    actor(userID),
			Action:     ActionTerminalClose,
			EntityType: EntityTerminal,
			EntityID:   terminalID.String(),
			Old:        before,
			New: map[string]any{
				"estado":      term.Status,
				"sesion_id":   sessionID,
				"monto_final": final,
				"retiro":      withdrawal,
			},
		}
		if sess == nil {
			entry.Action = ActionTerminalCloseNoSession
			entry.Justification = "Cierre sin sesión abierta para el usuario"
		}
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return err
		}
		if err := enqueue(ctx, s.outbox, tx, EventTerminalClosed, terminalID, map[string]any{
			"terminal_id": terminalID,
			"sesion_id":   sessionID,
			"usuario_id":  userID,
			"monto_final": final,
		}); err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("terminal_id", terminalID.String()).Str("user_id", userID.String()).Bool("sin_sesion", resp.SinSesion).Msg("terminal closed")
	return resp, nil
}

// ── ForceClose ────────────────────────────────────────────────────────────────
// Privileged override for stuck terminals. Works with or without a session.

func (s *terminalService) ForceClose(ctx context.Context, terminalID, adminID uuid.UUID, req dto.ForzarCierreRequest) (*dto.CierreResponse, error) {
	justification := strings.TrimSpace(req.Justificacion)
	if utf8.RuneCountInString(justification) < minJustificationLen {
		return nil, apierror.Validation("La justificación debe tener al menos 10 caracteres")
	}
	if terminalID == uuid.Nil || adminID == uuid.Nil {
		return nil, apierror.Validation("Identificador de terminal o usuario inválido")
	}
	if _, err := s.terminals.FindByID(ctx, nil, terminalID); err != nil {
		return nil, rekind(err, ErrTerminalNotFound, nil)
	}

	var resp *dto.CierreResponse
	err := s.tx.Run(ctx, "terminal.force_close", func(tx *gorm.DB) error {
		term, err := s.terminals.LockByID(ctx, tx, terminalID)
		if err != nil {
			return rekind(err, ErrTerminalNotFound, ErrTerminalLocked)
		}
		sess, err := s.cash.LockOpenSessionByTerminal(ctx, tx, terminalID)
		if err != nil {
			return rekind(err, nil, ErrTerminalLocked)
		}

		now := s.now()
		before := terminalSnapshot(term)
		r := &dto.CierreResponse{TerminalID: terminalID.String(), SinSesion: sess == nil}
		var sessionID, occupant *uuid.UUID
		occupant = term.CurrentCashierID

		if sess != nil {
			sess.Status = model.SessionClosedForce
			sess.ClosedAt = &now
			sess.Notes = &justification
			if err := s.cash.UpdateSession(ctx, tx, sess); err != nil {
				return err
			}
			if err := s.cash.CreateMovement(ctx, tx, &model.CashMovement{
				ID:         uuid.New(),
				SessionID:  &sess.ID,
				TerminalID: terminalID,
				LocationID: term.LocationID,
				UserID:     adminID,
				Type:       model.MovementCierre,
				Amount:     decimal.Zero,
				Note:       "Cierre forzado",
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			sessionID = &sess.ID
			if occupant == nil {
				occupant = &sess.UserID
			}
			r.Sesion = toSesionResponse(sess)
		}

		term.Release()
		term.UpdatedAt = now
		if err := s.terminals.Update(ctx, tx, term); err != nil {
			return err
		}

		old := before
		old["sesion_id"] = sessionID
		old["ocupante_original"] = occupant
		if sess != nil {
			old["sesion_usuario_id"] = sess.UserID
			old["monto_inicial"] = sess.OpeningAmount
			old["apertura_en"] = sess.OpenedAt
		}
		if err := s.audit.Record(ctx, tx, AuditEntry{
			ActorID:       actor(adminID),
			Action:        ActionTerminalForceClose,
			EntityType:    EntityTerminal,
			EntityID:      terminalID.String(),
			Old:           old,
			New:           map[string]any{"estado": term.Status, "sesion_estado": model.SessionClosedForce},
			Justification: justification,
		}); err != nil {
			return err
		}
		if err := enqueue(ctx, s.outbox, tx, EventTerminalForceClosed, terminalID, map[string]any{
			"terminal_id":       terminalID,
			"sesion_id":         sessionID,
			"ocupante_original": occupant,
			"autorizado_por":    adminID,
		}); err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Warn().Str("terminal_id", terminalID.String()).Str("user_id", adminID.String()).Msg("terminal force-closed")
	return resp, nil
}

// ── Get ───────────────────────────────────────────────────────────────────────

func (s *terminalService) Get(ctx context.Context, terminalID, viewerID uuid.UUID) (*dto.TerminalResponse, error) {
	term, err := s.terminals.FindByID(ctx, nil, terminalID)
	if err != nil {
		return nil, rekind(err, ErrTerminalNotFound, nil)
	}
	sess, err := s.cash.FindOpenSessionByTerminal(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	s.audit.RecordBestEffort(ctx, AuditEntry{
		ActorID:    actor(viewerID),
		Action:     ActionTerminalView,
		EntityType: EntityTerminal,
		EntityID:   terminalID.String(),
	})

	resp := &dto.TerminalResponse{
		ID:         term.ID.String(),
		Nombre:     term.Name,
		SucursalID: term.LocationID.String(),
		Estado:     term.Status,
	}
	if term.CurrentCashierID != nil {
		id := term.CurrentCashierID.String()
		resp.CajeroActual = &id
	}
	if sess != nil {
		resp.SesionAbierta = toSesionResponse(sess)
	}
	return resp, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func terminalSnapshot(t *model.Terminal) map[string]any {
	return map[string]any{"estado": t.Status, "cajero_actual": t.CurrentCashierID}
}

func toSesionResponse(s *model.CashRegisterSession) *dto.SesionResponse {
	r := &dto.SesionResponse{
		ID:                  s.ID.String(),
		TerminalID:          s.TerminalID.String(),
		UsuarioID:           s.UserID.String(),
		Estado:              s.Status,
		MontoInicial:        s.OpeningAmount,
		MontoEsperado:       s.ExpectedAmount,
		MontoFinal:          s.ClosingAmount,
		Diferencia:          s.Difference,
		ClasificacionDesvio: s.DifferenceClass,
		Observaciones:       s.Notes,
		AperturaEn:          s.OpenedAt.Format(time.RFC3339),
	}
	if s.ClosedAt != nil {
		c := s.ClosedAt.Format(time.RFC3339)
		r.CierreEn = &c
	}
	return r
}
