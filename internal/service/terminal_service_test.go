package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"vallenar/internal/apierror"
	"vallenar/internal/dto"
	"vallenar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openReq(amount int64) dto.AbrirTerminalRequest {
	return dto.AbrirTerminalRequest{MontoInicial: decimal.NewFromInt(amount)}
}

func openSessions(st *memState) []model.CashRegisterSession {
	var out []model.CashRegisterSession
	for _, s := range st.sessions {
		if s.Status == model.SessionOpen {
			out = append(out, s)
		}
	}
	return out
}

// ── Open ──────────────────────────────────────────────────────────────────────

func TestOpenTerminal(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()

	resp, err := env.terminals.Open(context.Background(), term, user, openReq(50000))
	require.NoError(t, err)
	assert.False(t, resp.Reutilizada)

	st := env.store.state()
	terminal := st.terminals[term]
	assert.Equal(t, model.TerminalOpen, terminal.Status)
	require.NotNil(t, terminal.CurrentCashierID)
	assert.Equal(t, user, *terminal.CurrentCashierID)

	sess := st.sessions[uuid.MustParse(resp.SesionID)]
	assert.Equal(t, model.SessionOpen, sess.Status)
	assert.Equal(t, "50000", sess.OpeningAmount.String())

	require.Len(t, st.movements, 1)
	assert.Equal(t, model.MovementApertura, st.movements[0].Type)
	assert.Equal(t, env.location, st.movements[0].LocationID)
	assert.Equal(t, []string{ActionTerminalOpen}, env.auditActions())
	require.Len(t, st.outbox, 1)
	assert.Equal(t, EventTerminalOpened, st.outbox[0].Type)
}

func TestOpenTerminal_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()

	first, err := env.terminals.Open(context.Background(), term, user, openReq(50000))
	require.NoError(t, err)
	second, err := env.terminals.Open(context.Background(), term, user, openReq(50000))
	require.NoError(t, err)

	assert.Equal(t, first.SesionID, second.SesionID)
	assert.True(t, second.Reutilizada)
	st := env.store.state()
	assert.Len(t, st.sessions, 1)
	assert.Len(t, st.movements, 1)
}

// Two identical opens racing for the same terminal create one session.
func TestOpenTerminal_ConcurrentSamePair(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := env.terminals.Open(context.Background(), term, user, openReq(50000))
			errs[i] = err
			if resp != nil {
				ids[i] = resp.SesionID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, ids[0], ids[1])
	assert.Len(t, env.store.state().sessions, 1)
}

func TestOpenTerminal_OccupiedByOther(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)

	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(1000))
	require.NoError(t, err)
	_, err = env.terminals.Open(context.Background(), term, uuid.New(), openReq(1000))

	assert.True(t, errors.Is(err, ErrTerminalOccupied))
	assert.Len(t, env.store.state().sessions, 1)
}

func TestOpenTerminal_GhostSessionAutoClosed(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.addTerminal(t)
	t2 := env.addTerminal(t)
	user := uuid.New()

	first, err := env.terminals.Open(context.Background(), t1, user, openReq(1000))
	require.NoError(t, err)
	second, err := env.terminals.Open(context.Background(), t2, user, openReq(2000))
	require.NoError(t, err)

	assert.Equal(t, []string{first.SesionID}, second.SesionesAutoCerradas)
	st := env.store.state()
	assert.Equal(t, model.SessionClosedAuto, st.sessions[uuid.MustParse(first.SesionID)].Status)
	assert.Equal(t, model.TerminalClosed, st.terminals[t1].Status)
	assert.Nil(t, st.terminals[t1].CurrentCashierID)
	assert.Len(t, openSessions(st), 1)
	assert.Contains(t, env.auditActions(), ActionSessionAutoClose)
}

func TestOpenTerminal_ValidationBeforeLock(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)

	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(-1))
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	_, err = env.terminals.Open(context.Background(), uuid.New(), uuid.New(), openReq(10))
	assert.True(t, errors.Is(err, ErrTerminalNotFound))
	assert.Zero(t, env.store.locks())
}

func TestOpenTerminal_BusyReturnsConcurrentSession(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()
	concurrent := uuid.New()

	env.store.busy[term] = true
	env.store.busyHook = func() {
		// the transaction holding the lock commits the same open
		require.NoError(t, memCash{env.store}.CreateSession(context.Background(), nil, &model.CashRegisterSession{
			ID: concurrent, TerminalID: term, UserID: user, Status: model.SessionOpen, OpenedAt: testNow,
		}))
	}

	resp, err := env.terminals.Open(context.Background(), term, user, openReq(50000))
	require.NoError(t, err)
	assert.Equal(t, concurrent.String(), resp.SesionID)
	assert.True(t, resp.Reutilizada)
}

func TestOpenTerminal_BusyIsTransient(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	env.store.busy[term] = true

	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(50000))
	assert.True(t, errors.Is(err, ErrTerminalLocked))
	assert.True(t, apierror.IsTransient(err))
	assert.Empty(t, env.store.state().sessions)
}

func TestOpenTerminal_AuditFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	env.store.failAudit = true

	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(50000))
	require.Error(t, err)

	st := env.store.state()
	assert.Empty(t, st.sessions)
	assert.Empty(t, st.movements)
	assert.Equal(t, model.TerminalClosed, st.terminals[term].Status)
}

// ── Close ─────────────────────────────────────────────────────────────────────

func TestCloseTerminal_DeviationClassified(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()
	opened, err := env.terminals.Open(context.Background(), term, user, openReq(10000))
	require.NoError(t, err)
	sessID := uuid.MustParse(opened.SesionID)

	method := model.PaymentEfectivo
	require.NoError(t, memCash{env.store}.CreateMovement(context.Background(), nil, &model.CashMovement{
		ID:   uuid.New(), SessionID: &sessID, TerminalID: term, UserID: user,
		Type: model.MovementVenta, Method: &method, Amount: decimal.NewFromInt(5000),
	}))

	// expected 15000, declared 14800: -1.33%
	resp, err := env.terminals.Close(context.Background(), term, user, dto.CerrarTerminalRequest{MontoFinal: decimal.NewFromInt(14800)})
	require.NoError(t, err)
	require.NotNil(t, resp.Sesion)
	assert.Equal(t, model.SessionClosed, resp.Sesion.Estado)
	assert.Equal(t, "15000", resp.Sesion.MontoEsperado.String())
	assert.Equal(t, "-200", resp.Sesion.Diferencia.String())
	assert.Equal(t, DeviationAdvertencia, *resp.Sesion.ClasificacionDesvio)

	st := env.store.state()
	assert.Equal(t, model.TerminalClosed, st.terminals[term].Status)
	assert.Nil(t, st.terminals[term].CurrentCashierID)
	assert.Empty(t, openSessions(st))
}

func TestCloseTerminal_WithdrawalCreatesRemittance(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()
	_, err := env.terminals.Open(context.Background(), term, user, openReq(10000))
	require.NoError(t, err)

	resp, err := env.terminals.Close(context.Background(), term, user, dto.CerrarTerminalRequest{
		MontoFinal:  decimal.NewFromInt(10000),
		MontoRetiro: decimal.NewFromInt(4000),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.RemesaID)

	st := env.store.state()
	require.Len(t, st.remittances, 1)
	assert.Equal(t, model.RemittancePendingReceipt, st.remittances[0].Status)
	assert.Equal(t, "4000", st.remittances[0].Amount.String())

	var types []string
	for _, mv := range st.movements {
		types = append(types, mv.Type)
		if mv.Type == model.MovementRetiro {
			assert.Equal(t, "-4000", mv.Amount.String())
		}
	}
	assert.Equal(t, []string{model.MovementApertura, model.MovementCierre, model.MovementRetiro}, types)

	var events []string
	for _, ev := range st.outbox {
		events = append(events, ev.Type)
	}
	assert.Contains(t, events, EventRemittanceCreated)
	assert.Contains(t, events, EventTerminalClosed)
}

func TestCloseTerminal_NoRemittanceWithoutWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()
	_, err := env.terminals.Open(context.Background(), term, user, openReq(10000))
	require.NoError(t, err)

	resp, err := env.terminals.Close(context.Background(), term, user, dto.CerrarTerminalRequest{MontoFinal: decimal.NewFromInt(10000)})
	require.NoError(t, err)
	assert.Nil(t, resp.RemesaID)
	assert.Empty(t, env.store.state().remittances)
	assert.Equal(t, DeviationNormal, *resp.Sesion.ClasificacionDesvio)
}

func TestCloseTerminal_WithoutSessionIsAudited(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)

	resp, err := env.terminals.Close(context.Background(), term, uuid.New(), dto.CerrarTerminalRequest{MontoFinal: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, resp.SinSesion)
	assert.Nil(t, resp.Sesion)
	assert.Equal(t, []string{ActionTerminalCloseNoSession}, env.auditActions())
}

func TestCloseTerminal_OccupiedByOther(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(1000))
	require.NoError(t, err)

	_, err = env.terminals.Close(context.Background(), term, uuid.New(), dto.CerrarTerminalRequest{MontoFinal: decimal.NewFromInt(1000)})
	assert.True(t, errors.Is(err, ErrTerminalOccupied))
	assert.Equal(t, model.TerminalOpen, env.store.state().terminals[term].Status)
}

func TestCloseTerminal_WithdrawalAboveFinalRejected(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)

	_, err := env.terminals.Close(context.Background(), term, uuid.New(), dto.CerrarTerminalRequest{
		MontoFinal:  decimal.NewFromInt(100),
		MontoRetiro: decimal.NewFromInt(200),
	})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
	assert.Zero(t, env.store.locks())
}

// ── ForceClose ────────────────────────────────────────────────────────────────

func TestForceClose_ShortJustificationRejectedBeforeLock(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(1000))
	require.NoError(t, err)
	locksBefore := env.store.locks()

	_, err = env.terminals.ForceClose(context.Background(), term, uuid.New(), dto.ForzarCierreRequest{Justificacion: "corto"})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
	assert.Equal(t, locksBefore, env.store.locks())
	assert.Equal(t, model.TerminalOpen, env.store.state().terminals[term].Status)
}

func TestForceClose_RecordsOriginalOccupant(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	cashier := uuid.New()
	admin := uuid.New()
	opened, err := env.terminals.Open(context.Background(), term, cashier, openReq(1000))
	require.NoError(t, err)

	resp, err := env.terminals.ForceClose(context.Background(), term, admin, dto.ForzarCierreRequest{Justificacion: "  Terminal bloqueado tras corte de luz  "})
	require.NoError(t, err)
	assert.False(t, resp.SinSesion)

	st := env.store.state()
	assert.Equal(t, model.SessionClosedForce, st.sessions[uuid.MustParse(opened.SesionID)].Status)
	assert.Equal(t, model.TerminalClosed, st.terminals[term].Status)

	entry := st.audit[len(st.audit)-1]
	assert.Equal(t, ActionTerminalForceClose, entry.ActionCode)
	require.NotNil(t, entry.Justification)
	assert.Equal(t, "Terminal bloqueado tras corte de luz", *entry.Justification)
	assert.Equal(t, admin, *entry.ActorID)

	var old map[string]any
	require.NoError(t, json.Unmarshal(entry.OldValues, &old))
	assert.Equal(t, cashier.String(), old["ocupante_original"])
	assert.Equal(t, cashier.String(), old["sesion_usuario_id"])
}

func TestForceClose_StuckTerminalWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	ghost := uuid.New()
	require.NoError(t, memTerminals{env.store}.Update(context.Background(), nil, &model.Terminal{
		ID: term, LocationID: env.location, Status: model.TerminalOpen, CurrentCashierID: &ghost,
	}))

	resp, err := env.terminals.ForceClose(context.Background(), term, uuid.New(), dto.ForzarCierreRequest{Justificacion: "Sesión perdida sin registro"})
	require.NoError(t, err)
	assert.True(t, resp.SinSesion)
	assert.Equal(t, model.TerminalClosed, env.store.state().terminals[term].Status)
}

func TestForceClose_AuditFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	_, err := env.terminals.Open(context.Background(), term, uuid.New(), openReq(1000))
	require.NoError(t, err)
	env.store.failAudit = true

	_, err = env.terminals.ForceClose(context.Background(), term, uuid.New(), dto.ForzarCierreRequest{Justificacion: "Cierre administrativo"})
	require.Error(t, err)
	assert.Equal(t, model.TerminalOpen, env.store.state().terminals[term].Status)
	assert.Len(t, openSessions(env.store.state()), 1)
}

// ── Get ───────────────────────────────────────────────────────────────────────

func TestGetTerminal_AuditIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerminal(t)
	user := uuid.New()
	_, err := env.terminals.Open(context.Background(), term, user, openReq(1000))
	require.NoError(t, err)
	env.store.failAudit = true

	resp, err := env.terminals.Get(context.Background(), term, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.TerminalOpen, resp.Estado)
	require.NotNil(t, resp.SesionAbierta)
	assert.Equal(t, user.String(), resp.SesionAbierta.UsuarioID)
}
