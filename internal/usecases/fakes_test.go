package usecases

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
	"payroute.backend/pkg/crypto"
)

const testSealingKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// memTransactions honours the compare-and-set contract of the SQL repository.
type memTransactions struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]entities.Transaction
	casErr  error
	listErr error
}

func newMemTransactions() *memTransactions {
	return &memTransactions{rows: map[uuid.UUID]entities.Transaction{}}
}

func (m *memTransactions) Create(_ context.Context, tx *entities.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[tx.ID] = *tx
	return nil
}

func (m *memTransactions) GetByID(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return &row, nil
}

func (m *memTransactions) GetByGatewayTransactionID(_ context.Context, gatewayID uuid.UUID, gatewayTxnID string) (*entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.GatewayID != nil && *row.GatewayID == gatewayID && row.GatewayTransactionID.String == gatewayTxnID {
			out := row
			return &out, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (m *memTransactions) List(_ context.Context, filter entities.TransactionFilter, limit, offset int) ([]*entities.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var all []*entities.Transaction
	for _, row := range m.rows {
		if filter.MerchantID != nil && row.MerchantID != *filter.MerchantID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		out := row
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memTransactions) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next entities.TransactionStatus, patch entities.TransactionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casErr != nil {
		return m.casErr
	}
	if !expected.CanTransitionTo(next) {
		return domainerrors.ErrInvalidTransition
	}
	row, ok := m.rows[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Status != expected {
		return domainerrors.ErrStatusConflict
	}
	applyPatch(&row, next, patch, time.Now())
	m.rows[id] = row
	return nil
}

func (m *memTransactions) UpdateRefundedAmount(_ context.Context, id uuid.UUID, status entities.TransactionStatus, refunded decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != status {
		return domainerrors.ErrStatusConflict
	}
	row.RefundedAmount = refunded
	m.rows[id] = row
	return nil
}

func (m *memTransactions) ListStuckProcessing(_ context.Context, olderThan time.Time, limit int) ([]*entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Transaction
	for _, row := range m.rows {
		if row.Status == entities.TransactionStatusProcessing && row.UpdatedAt.Before(olderThan) {
			r := row
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTransactions) get(t *testing.T, id uuid.UUID) entities.Transaction {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	require.True(t, ok)
	return row
}

type memGateways struct {
	byID map[uuid.UUID]*entities.PaymentGateway
}

func (m *memGateways) Create(_ context.Context, gw *entities.PaymentGateway) error {
	for _, existing := range m.byID {
		if existing.Code == gw.Code {
			return domainerrors.ErrAlreadyExists
		}
	}
	m.byID[gw.ID] = gw
	return nil
}

func (m *memGateways) GetByID(_ context.Context, id uuid.UUID) (*entities.PaymentGateway, error) {
	if gw, ok := m.byID[id]; ok {
		return gw, nil
	}
	return nil, domainerrors.ErrNotFound
}

func (m *memGateways) GetByCode(_ context.Context, code string) (*entities.PaymentGateway, error) {
	for _, gw := range m.byID {
		if gw.Code == code {
			return gw, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (m *memGateways) List(_ context.Context, activeOnly bool) ([]*entities.PaymentGateway, error) {
	var out []*entities.PaymentGateway
	for _, gw := range m.byID {
		if activeOnly && !gw.IsActive {
			continue
		}
		out = append(out, gw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memGateways) Update(_ context.Context, gw *entities.PaymentGateway) error {
	if _, ok := m.byID[gw.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	m.byID[gw.ID] = gw
	return nil
}

type memBindings struct {
	rows []*entities.MerchantGateway
	err  error
}

func (m *memBindings) Create(_ context.Context, b *entities.MerchantGateway) error {
	m.rows = append(m.rows, b)
	return nil
}

func (m *memBindings) ListByMerchant(_ context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*entities.MerchantGateway
	for _, b := range m.rows {
		if b.MerchantID == merchantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBindings) GetByMerchantAndGateway(_ context.Context, merchantID, gatewayID uuid.UUID) (*entities.MerchantGateway, error) {
	for _, b := range m.rows {
		if b.MerchantID == merchantID && b.GatewayID == gatewayID {
			return b, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (m *memBindings) Update(_ context.Context, b *entities.MerchantGateway) error {
	for i, row := range m.rows {
		if row.ID == b.ID {
			m.rows[i] = b
			return nil
		}
	}
	return domainerrors.ErrNotFound
}

type memRules struct {
	rows []*entities.RoutingRule
}

func (m *memRules) Create(_ context.Context, r *entities.RoutingRule) error {
	m.rows = append(m.rows, r)
	return nil
}

func (m *memRules) GetByID(_ context.Context, id uuid.UUID) (*entities.RoutingRule, error) {
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (m *memRules) ListByMerchant(_ context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error) {
	var out []*entities.RoutingRule
	for _, r := range m.rows {
		if r.MerchantID == merchantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) Update(_ context.Context, r *entities.RoutingRule) error {
	for i, row := range m.rows {
		if row.ID == r.ID {
			m.rows[i] = r
			return nil
		}
	}
	return domainerrors.ErrNotFound
}

func (m *memRules) Delete(_ context.Context, id uuid.UUID) error {
	for i, row := range m.rows {
		if row.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return domainerrors.ErrNotFound
}

type memAttempts struct {
	mu    sync.Mutex
	rows  []*entities.RoutingAttempt
	stats []entities.GatewayAttemptStats
}

func (m *memAttempts) Create(_ context.Context, a *entities.RoutingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, a)
	return nil
}

func (m *memAttempts) ListByTransaction(_ context.Context, id uuid.UUID) ([]*entities.RoutingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.RoutingAttempt
	for _, a := range m.rows {
		if a.TransactionID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttempts) StatsSince(context.Context, time.Time) ([]entities.GatewayAttemptStats, error) {
	return m.stats, nil
}

// MockHealthRepository is a testify mock for GatewayHealthRepository
type MockHealthRepository struct {
	mock.Mock
}

func (m *MockHealthRepository) Create(ctx context.Context, metric *entities.GatewayHealthMetric) error {
	return m.Called(ctx, metric).Error(0)
}

func (m *MockHealthRepository) LatestByGateways(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]*entities.GatewayHealthMetric, error) {
	args := m.Called(ctx, ids, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*entities.GatewayHealthMetric), args.Error(1)
}

func (m *MockHealthRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type memHealth struct {
	latest  map[uuid.UUID]*entities.GatewayHealthMetric
	saved   []*entities.GatewayHealthMetric
	since   time.Time
	cutoffs []time.Time
}

func (m *memHealth) Create(_ context.Context, metric *entities.GatewayHealthMetric) error {
	m.saved = append(m.saved, metric)
	return nil
}

func (m *memHealth) LatestByGateways(_ context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]*entities.GatewayHealthMetric, error) {
	m.since = since
	out := map[uuid.UUID]*entities.GatewayHealthMetric{}
	for _, id := range ids {
		metric, ok := m.latest[id]
		if !ok || (!since.IsZero() && metric.WindowEnd.Before(since)) {
			continue
		}
		out[id] = metric
	}
	return out, nil
}

func (m *memHealth) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

type memWebhooks struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entities.WebhookRecord
}

func newMemWebhooks() *memWebhooks {
	return &memWebhooks{rows: map[uuid.UUID]entities.WebhookRecord{}}
}

func (m *memWebhooks) Create(_ context.Context, r *entities.WebhookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = *r
	return nil
}

func (m *memWebhooks) Update(_ context.Context, r *entities.WebhookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	m.rows[r.ID] = *r
	return nil
}

func (m *memWebhooks) ListByTransaction(_ context.Context, id uuid.UUID) ([]*entities.WebhookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.WebhookRecord
	for _, r := range m.rows {
		if r.TransactionID != nil && *r.TransactionID == id {
			rec := r
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (m *memWebhooks) only(t *testing.T) entities.WebhookRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.rows, 1)
	for _, r := range m.rows {
		return r
	}
	return entities.WebhookRecord{}
}

// serialUoW runs units of work one at a time, like a row lock would.
type serialUoW struct {
	mu sync.Mutex
}

func (u *serialUoW) Do(ctx context.Context, fn func(context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx)
}

func (u *serialUoW) WithLock(ctx context.Context) context.Context { return ctx }

// scriptedGateway answers each call through the configured functions.
type scriptedGateway struct {
	code    string
	calls   atomic.Int32
	pay     func(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error)
	refund  func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
	status  func(ctx context.Context, id string) (*gateway.StatusResult, error)
	verify  func(payload []byte, headers http.Header) error
	parse   func(payload []byte) (*entities.WebhookEvent, error)
	refunds atomic.Int32
}

func (g *scriptedGateway) Code() string { return g.code }

func (g *scriptedGateway) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	g.calls.Add(1)
	if g.pay == nil {
		return &gateway.PaymentResult{Status: entities.AttemptStatusSuccess, GatewayTransactionID: g.code + "_" + req.TransactionID.String()}, nil
	}
	return g.pay(ctx, req)
}

func (g *scriptedGateway) ProcessRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.refunds.Add(1)
	if g.refund == nil {
		return &gateway.RefundResult{RefundID: "re_1", Status: entities.AttemptStatusSuccess}, nil
	}
	return g.refund(ctx, req)
}

func (g *scriptedGateway) CheckStatus(ctx context.Context, id string) (*gateway.StatusResult, error) {
	if g.status == nil {
		return &gateway.StatusResult{Status: entities.AttemptStatusPending}, nil
	}
	return g.status(ctx, id)
}

func (g *scriptedGateway) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	if g.verify == nil {
		return nil
	}
	return g.verify(payload, headers)
}

func (g *scriptedGateway) ParseWebhookEvent(payload []byte) (*entities.WebhookEvent, error) {
	if g.parse == nil {
		return nil, domainerrors.ErrUnsupportedEvent
	}
	return g.parse(payload)
}

// scriptedProvider hands out the scripted adapter registered for a code.
type scriptedProvider struct {
	adapters map[string]gateway.Gateway
}

func (p *scriptedProvider) Exists(code string) bool {
	_, ok := p.adapters[code]
	return ok
}

func (p *scriptedProvider) New(code string, _ gateway.Config) (gateway.Gateway, error) {
	if a, ok := p.adapters[code]; ok {
		return a, nil
	}
	return nil, domainerrors.ErrUnknownGateway
}

// recordingPublisher captures published notifications
type recordingPublisher struct {
	mu   sync.Mutex
	sent []entities.MerchantNotification
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, n entities.MerchantNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.err
}

func (p *recordingPublisher) statuses() []entities.TransactionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entities.TransactionStatus, 0, len(p.sent))
	for _, n := range p.sent {
		out = append(out, n.Status)
	}
	return out
}

// MockPublisher is a testify mock for NotificationPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n entities.MerchantNotification) error {
	return m.Called(ctx, n).Error(0)
}

// harness wires a TransactionUsecase and WebhookUsecase over in-memory state.
type harness struct {
	merchantID uuid.UUID
	txs        *memTransactions
	gateways   *memGateways
	bindings   *memBindings
	rules      *memRules
	attempts   *memAttempts
	health     *memHealth
	webhooks   *memWebhooks
	provider   *scriptedProvider
	publisher  *recordingPublisher
	resolver   *GatewayResolver
	engine     *RoutingEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sealer, err := crypto.NewSealer(testSealingKey)
	require.NoError(t, err)
	provider := &scriptedProvider{adapters: map[string]gateway.Gateway{}}
	return &harness{
		merchantID: uuid.New(),
		txs:        newMemTransactions(),
		gateways:   &memGateways{byID: map[uuid.UUID]*entities.PaymentGateway{}},
		bindings:   &memBindings{},
		rules:      &memRules{},
		attempts:   &memAttempts{},
		health:     &memHealth{latest: map[uuid.UUID]*entities.GatewayHealthMetric{}},
		webhooks:   newMemWebhooks(),
		provider:   provider,
		publisher:  &recordingPublisher{},
		resolver:   NewGatewayResolver(provider, sealer),
		engine:     NewRoutingEngine(true),
	}
}

// addGateway registers a gateway, binds it to the merchant and returns the
// scripted adapter behind it.
func (h *harness) addGateway(t *testing.T, code string, priority int, pct, fixed string) *scriptedGateway {
	t.Helper()
	gw := newGateway(code, []string{"INR", "USD"}, entities.PaymentMethodUPI, entities.PaymentMethodCard)
	sealed, err := h.resolver.SealCredentials(code, entities.GatewayCredentials{APIKey: "key_" + code, WebhookSecret: "whsec_" + code})
	require.NoError(t, err)
	gw.SealedCredentials = sealed
	require.NoError(t, h.gateways.Create(context.Background(), gw))
	h.bindings.rows = append(h.bindings.rows, newBinding(h.merchantID, gw, priority, pct, fixed))

	adapter := &scriptedGateway{code: code}
	h.provider.adapters[code] = adapter
	return adapter
}

func (h *harness) transactions(cfg TransactionUsecaseConfig) *TransactionUsecase {
	u := NewTransactionUsecase(h.txs, h.gateways, h.bindings, h.rules, h.attempts, h.health, h.webhooks,
		&serialUoW{}, h.engine, h.resolver, h.publisher, nil, cfg)
	u.notify.dispatch = func(f func()) { f() }
	return u
}

func (h *harness) webhookUsecase() *WebhookUsecase {
	u := NewWebhookUsecase(h.gateways, h.txs, h.webhooks, h.resolver, h.publisher, nil)
	u.notify.dispatch = func(f func()) { f() }
	return u
}

func (h *harness) pendingTransaction(t *testing.T, amount string) *entities.Transaction {
	t.Helper()
	tx := newTransaction(amount, "INR", entities.PaymentMethodUPI)
	tx.ID = uuid.New()
	tx.MerchantID = h.merchantID
	tx.Reference = "order-" + tx.ID.String()[:8]
	tx.UpdatedAt = tx.CreatedAt
	require.NoError(t, h.txs.Create(context.Background(), tx))
	return tx
}

// settledTransaction stores a transaction already captured by gatewayCode.
func (h *harness) settledTransaction(t *testing.T, amount, gatewayCode, gatewayTxnID string, status entities.TransactionStatus) *entities.Transaction {
	t.Helper()
	tx := h.pendingTransaction(t, amount)
	gw, err := h.gateways.GetByCode(context.Background(), gatewayCode)
	require.NoError(t, err)
	tx.Status = status
	tx.GatewayID = &gw.ID
	tx.GatewayCode = null.StringFrom(gatewayCode)
	tx.GatewayTransactionID = null.StringFrom(gatewayTxnID)
	require.NoError(t, h.txs.Create(context.Background(), tx))
	return tx
}

var errBoom = errors.New("boom")
