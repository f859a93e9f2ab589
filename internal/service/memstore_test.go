package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"vallenar/internal/apierror"
	"vallenar/internal/infra"
	"vallenar/internal/model"
	"vallenar/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ── In-memory store ───────────────────────────────────────────────────────────
// memStore backs every repository interface with maps. Run serialises
// transactions and restores a snapshot when fn fails, so rollback behaves like
// the database. Lock contention is simulated with the busy set.

type memState struct {
	users       map[uuid.UUID]model.User
	terminals   map[uuid.UUID]model.Terminal
	sessions    map[uuid.UUID]model.CashRegisterSession
	movements   []model.CashMovement
	remittances []model.TreasuryRemittance
	products    map[uuid.UUID]model.Product
	batches     map[uuid.UUID]model.InventoryBatch
	stockMoves  []model.StockMovement
	quotes      map[uuid.UUID]model.Quote
	sales       map[uuid.UUID]model.Sale
	audit       []model.AuditLog
	outbox      []model.OutboxEvent
	quoteSeq    int
	ticketSeq   int
}

func (s *memState) clone() *memState {
	c := *s
	c.users = cloneMap(s.users)
	c.terminals = cloneMap(s.terminals)
	c.sessions = cloneMap(s.sessions)
	c.products = cloneMap(s.products)
	c.batches = cloneMap(s.batches)
	c.quotes = make(map[uuid.UUID]model.Quote, len(s.quotes))
	for k, q := range s.quotes {
		c.quotes[k] = copyQuote(q)
	}
	c.sales = cloneMap(s.sales)
	c.movements = append([]model.CashMovement(nil), s.movements...)
	c.remittances = append([]model.TreasuryRemittance(nil), s.remittances...)
	c.stockMoves = append([]model.StockMovement(nil), s.stockMoves...)
	c.audit = append([]model.AuditLog(nil), s.audit...)
	c.outbox = append([]model.OutboxEvent(nil), s.outbox...)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyQuote(q model.Quote) model.Quote {
	q.Items = append([]model.QuoteItem(nil), q.Items...)
	return q
}

type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *memState

	busy         map[uuid.UUID]bool
	busyHook     func()
	pendingHook  func()
	lockAttempts int
	failAudit    bool
	failUsers    error
	// failCommits makes the next n transactions fail with a serialization error
	// after fn has run.
	failCommits int
	runs        int
}

func newMemStore() *memStore {
	return &memStore{
		st: &memState{
			users:     map[uuid.UUID]model.User{},
			terminals: map[uuid.UUID]model.Terminal{},
			sessions:  map[uuid.UUID]model.CashRegisterSession{},
			products:  map[uuid.UUID]model.Product{},
			batches:   map[uuid.UUID]model.InventoryBatch{},
			quotes:    map[uuid.UUID]model.Quote{},
			sales:     map[uuid.UUID]model.Sale{},
		},
		busy: map[uuid.UUID]bool{},
	}
}

// Run implements TxRunner with the same retry policy as the gorm runner.
func (m *memStore) Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return retryTransient(ctx, op, 2, time.Millisecond, func() error {
		m.mu.Lock()
		m.runs++
		snap := m.st.clone()
		m.mu.Unlock()

		err := fn(nil)
		if err == nil && m.failCommits > 0 {
			m.failCommits--
			err = repository.ErrSerialization
		}
		if err != nil {
			m.mu.Lock()
			m.st = snap
			hook := m.pendingHook
			m.pendingHook = nil
			m.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
		return err
	})
}

// lock simulates FOR UPDATE NOWAIT. Callers hold m.mu.
func (m *memStore) lock(id uuid.UUID) error {
	m.lockAttempts++
	if m.busy[id] {
		if m.busyHook != nil {
			m.pendingHook, m.busyHook = m.busyHook, nil
		}
		return apierror.Wrap(repository.ErrBusy.Kind, repository.ErrBusy.Code, repository.ErrBusy.Message,
			fmt.Errorf("could not obtain lock on row %s", id))
	}
	return nil
}

func (m *memStore) locks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockAttempts
}

func (m *memStore) state() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

// ── Users ─────────────────────────────────────────────────────────────────────

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.st.users[u.ID] = *u
	return nil
}

func (r memUsers) Upsert(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	for id, existing := range r.st.users {
		if existing.Username == u.Username {
			u.ID = id
		}
	}
	r.mu.Unlock()
	return r.Create(ctx, u)
}

func (r memUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) FindActiveByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.st.users {
		if u.Username == username && u.Active {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) ListActiveByRoles(_ context.Context, roles []model.Role) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUsers != nil {
		return nil, r.failUsers
	}
	wanted := map[model.Role]bool{}
	for _, role := range roles {
		wanted[role] = true
	}
	var out []model.User
	for _, u := range r.st.users {
		if u.Active && u.AccessPin != nil && wanted[u.Role] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role.Rank() != out[j].Role.Rank() {
			return out[i].Role.Rank() < out[j].Role.Rank()
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// ── Terminals ─────────────────────────────────────────────────────────────────

type memTerminals struct{ *memStore }

func (r memTerminals) Create(_ context.Context, t *model.Terminal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = model.TerminalClosed
	}
	r.st.terminals[t.ID] = *t
	return nil
}

func (r memTerminals) FindByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.st.terminals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r memTerminals) LockByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Terminal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.lock(id); err != nil {
		return nil, err
	}
	t, ok := r.st.terminals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r memTerminals) Update(_ context.Context, _ *gorm.DB, t *model.Terminal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if (t.Status == model.TerminalOpen) != (t.CurrentCashierID != nil) {
		return repository.ErrConstraint
	}
	r.st.terminals[t.ID] = *t
	return nil
}

// ── Cash register ─────────────────────────────────────────────────────────────

type memCash struct{ *memStore }

func (r memCash) FindSessionByID(_ context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r memCash) openWhere(match func(model.CashRegisterSession) bool) []model.CashRegisterSession {
	var out []model.CashRegisterSession
	for _, s := range r.st.sessions {
		if s.Status == model.SessionOpen && match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (r memCash) FindOpenSession(_ context.Context, _ *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.openWhere(func(s model.CashRegisterSession) bool { return s.TerminalID == terminalID && s.UserID == userID })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r memCash) FindOpenSessionByTerminal(_ context.Context, terminalID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.openWhere(func(s model.CashRegisterSession) bool { return s.TerminalID == terminalID })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r memCash) LockOpenSession(_ context.Context, _ *gorm.DB, terminalID, userID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.openWhere(func(s model.CashRegisterSession) bool { return s.TerminalID == terminalID && s.UserID == userID })
	if len(found) == 0 {
		return nil, nil
	}
	if err := r.lock(found[0].ID); err != nil {
		return nil, err
	}
	return &found[0], nil
}

func (r memCash) LockOpenSessionByTerminal(_ context.Context, _ *gorm.DB, terminalID uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.openWhere(func(s model.CashRegisterSession) bool { return s.TerminalID == terminalID })
	if len(found) == 0 {
		return nil, nil
	}
	last := found[len(found)-1]
	if err := r.lock(last.ID); err != nil {
		return nil, err
	}
	return &last, nil
}

func (r memCash) LockOpenSessionsByUser(_ context.Context, _ *gorm.DB, userID, exceptTerminalID uuid.UUID) ([]model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.openWhere(func(s model.CashRegisterSession) bool { return s.UserID == userID && s.TerminalID != exceptTerminalID })
	for _, s := range found {
		if err := r.lock(s.ID); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (r memCash) CreateSession(_ context.Context, _ *gorm.DB, s *model.CashRegisterSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == model.SessionOpen {
		// uq_sessions_open_terminal / uq_sessions_open_user
		for _, other := range r.st.sessions {
			if other.Status == model.SessionOpen && (other.TerminalID == s.TerminalID || other.UserID == s.UserID) {
				return repository.ErrDuplicate
			}
		}
	}
	r.st.sessions[s.ID] = *s
	return nil
}

func (r memCash) UpdateSession(_ context.Context, _ *gorm.DB, s *model.CashRegisterSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.sessions[s.ID] = *s
	return nil
}

func (r memCash) CreateMovement(_ context.Context, _ *gorm.DB, mv *model.CashMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.movements = append(r.st.movements, *mv)
	return nil
}

func (r memCash) SumDrawerCash(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, mv := range r.st.movements {
		if mv.SessionID == nil || *mv.SessionID != sessionID {
			continue
		}
		if mv.Type != model.MovementApertura && mv.Type != model.MovementVenta {
			continue
		}
		if mv.Method == nil || *mv.Method == model.PaymentEfectivo {
			sum = sum.Add(mv.Amount)
		}
	}
	return sum, nil
}

func (r memCash) CreateRemittance(_ context.Context, _ *gorm.DB, rem *model.TreasuryRemittance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.remittances = append(r.st.remittances, *rem)
	return nil
}

// ── Quotes ────────────────────────────────────────────────────────────────────

type memQuotes struct{ *memStore }

func (r memQuotes) get(id uuid.UUID) (*model.Quote, error) {
	q, ok := r.st.quotes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := copyQuote(q)
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].Position < c.Items[j].Position })
	return &c, nil
}

func (r memQuotes) FindByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r memQuotes) LockByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.lock(id); err != nil {
		return nil, err
	}
	return r.get(id)
}

func (r memQuotes) NextCode(_ context.Context, _ *gorm.DB) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.quoteSeq++
	return fmt.Sprintf("COT-%06d", r.st.quoteSeq), nil
}

func (r memQuotes) Create(_ context.Context, _ *gorm.DB, q *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !q.Total.Equal(q.Subtotal.Sub(q.Discount)) {
		return repository.ErrConstraint
	}
	r.st.quotes[q.ID] = copyQuote(*q)
	return nil
}

func (r memQuotes) Update(_ context.Context, _ *gorm.DB, q *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.st.quotes[q.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !q.Total.Equal(q.Subtotal.Sub(q.Discount)) {
		return repository.ErrConstraint
	}
	updated := *q
	updated.Items = stored.Items
	r.st.quotes[q.ID] = updated
	return nil
}

func (r memQuotes) ReplaceItems(_ context.Context, _ *gorm.DB, quoteID uuid.UUID, items []model.QuoteItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.st.quotes[quoteID]
	q.Items = nil
	for _, it := range items {
		it.QuoteID = quoteID
		q.Items = append(q.Items, it)
	}
	r.st.quotes[quoteID] = q
	return nil
}

func (r memQuotes) LockExpiredPending(_ context.Context, _ *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []model.Quote
	for _, q := range r.st.quotes {
		if q.Status == model.QuotePending && q.ValidUntil.Before(now) && !r.busy[q.ID] {
			due = append(due, q)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ValidUntil.Before(due[j].ValidUntil) })
	var ids []uuid.UUID
	for i := 0; i < len(due) && i < limit; i++ {
		ids = append(ids, due[i].ID)
	}
	return ids, nil
}

func (r memQuotes) MarkExpired(_ context.Context, _ *gorm.DB, ids []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		q, ok := r.st.quotes[id]
		if ok && q.Status == model.QuotePending {
			q.Status = model.QuoteExpired
			r.st.quotes[id] = q
			n++
		}
	}
	return n, nil
}

// ── Inventory ─────────────────────────────────────────────────────────────────

type memInventory struct{ *memStore }

func (r memInventory) CreateBatch(_ context.Context, b *model.InventoryBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.st.batches[b.ID] = *b
	return nil
}

func (r memInventory) LockBatchWithQuantity(_ context.Context, _ *gorm.DB, productID uuid.UUID, qty int) (*model.InventoryBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []model.InventoryBatch
	for _, b := range r.st.batches {
		if b.ProductID == productID && b.QuantityReal >= qty {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].ExpiryDate, candidates[j].ExpiryDate
		switch {
		case a == nil && b == nil:
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	if err := r.lock(candidates[0].ID); err != nil {
		return nil, err
	}
	return &candidates[0], nil
}

func (r memInventory) DecrementBatch(_ context.Context, _ *gorm.DB, batchID uuid.UUID, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.st.batches[batchID]
	if !ok || b.QuantityReal < qty {
		return repository.ErrStockChanged
	}
	b.QuantityReal -= qty
	r.st.batches[batchID] = b
	return nil
}

func (r memInventory) CreateStockMovement(_ context.Context, _ *gorm.DB, mv *model.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.stockMoves = append(r.st.stockMoves, *mv)
	return nil
}

func (r memInventory) ListBatches(_ context.Context, productID uuid.UUID) ([]model.InventoryBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InventoryBatch
	for _, b := range r.st.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	return out, nil
}

// ── Sales / products / audit / outbox ─────────────────────────────────────────

type memSales struct{ *memStore }

func (r memSales) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.sales[s.ID] = *s
	return nil
}

func (r memSales) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.st.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r memSales) NextTicketNumber(_ context.Context, _ *gorm.DB) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.ticketSeq++
	return r.st.ticketSeq, nil
}

type memProducts struct{ *memStore }

func (r memProducts) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.st.products[p.ID] = *p
	return nil
}

func (r memProducts) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memProducts) FindActiveByIDs(_ context.Context, ids []uuid.UUID) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.st.products[id]; ok && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

type memAudit struct{ *memStore }

func (r memAudit) Create(_ context.Context, _ *gorm.DB, e *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAudit {
		return apierror.Infrastructure(fmt.Errorf("audit_log: disk full"))
	}
	r.st.audit = append(r.st.audit, *e)
	return nil
}

type memOutbox struct{ *memStore }

func (r memOutbox) Enqueue(_ context.Context, _ *gorm.DB, ev *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	r.st.outbox = append(r.st.outbox, *ev)
	return nil
}

func (r memOutbox) ClaimPending(_ context.Context, _ *gorm.DB, now time.Time, limit int) ([]model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.OutboxEvent
	for _, ev := range r.st.outbox {
		if ev.Status == model.OutboxPending && !ev.NextAttemptAt.After(now) && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r memOutbox) update(id uuid.UUID, fn func(*model.OutboxEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.st.outbox {
		if r.st.outbox[i].ID == id {
			fn(&r.st.outbox[i])
		}
	}
}

func (r memOutbox) MarkDispatched(_ context.Context, _ *gorm.DB, id uuid.UUID, at time.Time) error {
	r.update(id, func(ev *model.OutboxEvent) { ev.Status, ev.DispatchedAt = model.OutboxDispatched, &at })
	return nil
}

func (r memOutbox) MarkFailed(_ context.Context, _ *gorm.DB, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	r.update(id, func(ev *model.OutboxEvent) { ev.Attempts, ev.NextAttemptAt, ev.LastError = attempts, next, &lastErr })
	return nil
}

func (r memOutbox) MarkDead(_ context.Context, _ *gorm.DB, id uuid.UUID, attempts int, lastErr string) error {
	r.update(id, func(ev *model.OutboxEvent) { ev.Status, ev.Attempts, ev.LastError = model.OutboxDead, attempts, &lastErr })
	return nil
}

func (r memOutbox) CountPending(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, ev := range r.st.outbox {
		if ev.Status == model.OutboxPending {
			n++
		}
	}
	return n, nil
}

var (
	_ repository.UserRepository         = memUsers{}
	_ repository.TerminalRepository     = memTerminals{}
	_ repository.CashRegisterRepository = memCash{}
	_ repository.QuoteRepository        = memQuotes{}
	_ repository.InventoryRepository    = memInventory{}
	_ repository.SaleRepository         = memSales{}
	_ repository.ProductRepository      = memProducts{}
	_ repository.AuditRepository        = memAudit{}
	_ repository.OutboxRepository       = memOutbox{}
	_ TxRunner                          = (*memStore)(nil)
)

// ── Test environment ──────────────────────────────────────────────────────────

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *memStore
	limiter   *infra.MemoryPinLimiter
	terminals *terminalService
	quotes    *quoteService
	location  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	limiter := infra.NewMemoryPinLimiter(3, 15*time.Minute)
	audit := &auditRecorder{repo: memAudit{store}, now: func() time.Time { return testNow }}

	ts := NewTerminalService(store, memTerminals{store}, memCash{store}, audit, memOutbox{store}).(*terminalService)
	ts.now = func() time.Time { return testNow }
	ts.busyWait = time.Millisecond

	qs := NewQuoteService(QuoteDeps{
		Tx:          store,
		Quotes:      memQuotes{store},
		Inventory:   memInventory{store},
		Sales:       memSales{store},
		Cash:        memCash{store},
		Terminals:   memTerminals{store},
		Catalog:     NewCatalog(memProducts{store}, infra.NewMemoryCache(), time.Minute),
		Authorizer:  NewAuthorizer(memUsers{store}, limiter),
		Audit:       audit,
		Outbox:      memOutbox{store},
		DefaultDays: 7,
	}).(*quoteService)
	qs.now = func() time.Time { return testNow }

	return &testEnv{store: store, limiter: limiter, terminals: ts, quotes: qs, location: uuid.New()}
}

func (e *testEnv) addTerminal(t *testing.T) uuid.UUID {
	t.Helper()
	term := &model.Terminal{ID: uuid.New(), Name: "Caja", LocationID: e.location, Status: model.TerminalClosed}
	if err := (memTerminals{e.store}).Create(context.Background(), term); err != nil {
		t.Fatal(err)
	}
	return term.ID
}

func (e *testEnv) addUser(t *testing.T, username string, role model.Role, pin string) model.User {
	t.Helper()
	u := model.User{ID: uuid.New(), Username: username, Name: username, Role: role, Active: true}
	if pin != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		hash := string(h)
		u.AccessPin = &hash
	}
	if err := (memUsers{e.store}).Create(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) addProduct(t *testing.T, name string, price int64, stock int) uuid.UUID {
	t.Helper()
	p := &model.Product{ID: uuid.New(), SKU: name, Name: name, Price: decimal.NewFromInt(price), Active: true}
	if err := (memProducts{e.store}).Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if stock > 0 {
		e.addBatch(t, p.ID, stock, nil)
	}
	return p.ID
}

func (e *testEnv) addBatch(t *testing.T, productID uuid.UUID, qty int, expiry *time.Time) uuid.UUID {
	t.Helper()
	b := &model.InventoryBatch{ID: uuid.New(), ProductID: productID, LotNumber: "L-" + productID.String()[:6], QuantityReal: qty, ExpiryDate: expiry, CreatedAt: testNow}
	if err := (memInventory{e.store}).CreateBatch(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	return b.ID
}

func (e *testEnv) auditActions() []string {
	var out []string
	for _, a := range e.store.state().audit {
		out = append(out, a.ActionCode)
	}
	return out
}
