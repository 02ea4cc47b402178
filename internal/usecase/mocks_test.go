//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
	"elearn-settlement/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// -----------------------------
// Repositories
// -----------------------------

// MockTxManager runs the callback without a real transaction; the mock repos
// are atomic on their own. WithTxErr simulates a commit failure.
type MockTxManager struct {
	WithTxErr error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxErr != nil {
		return m.WithTxErr
	}
	return fn(ctx, repository.NoTX)
}

// MockIntentRepo is an in-memory PaymentIntentRepository. Create and
// UpdateStatusIfPending hold the mutex across their check-and-write, so the
// atomicity the real store guarantees holds here too.
type MockIntentRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.PaymentIntent
	logs    map[string][]*model.PaymentLogEntry
	byOwner map[string][]*model.PaymentIntent // earnings fixtures, keyed by owner

	// entitlements backs ListSucceededWithoutEntitlement; nil is fine for
	// tests that never reconcile.
	entitlements *MockEntitlementRepo

	CreateErr        error
	AppendLogErr     error
	UpdateStatusFunc func(id string, status model.PaymentStatus) (bool, error)
}

var _ repository.PaymentIntentRepository = (*MockIntentRepo)(nil)

func NewMockIntentRepo() *MockIntentRepo {
	return &MockIntentRepo{
		byID:    make(map[string]*model.PaymentIntent),
		logs:    make(map[string][]*model.PaymentLogEntry),
		byOwner: make(map[string][]*model.PaymentIntent),
	}
}

func (m *MockIntentRepo) Create(ctx context.Context, qx repository.Tx, p *model.PaymentIntent) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.OrderTrackingID == p.OrderTrackingID {
			return domain.ErrDuplicateKey
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *MockIntentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockIntentRepo) FindByTrackingID(ctx context.Context, qx repository.Tx, trackingID string) (*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.OrderTrackingID == trackingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockIntentRepo) UpdateStatusIfPending(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if providerRef != nil {
		p.ProviderRef = *providerRef
	}
	p.SettledAt = settledAt
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockIntentRepo) AppendLog(ctx context.Context, qx repository.Tx, e *model.PaymentLogEntry) error {
	if m.AppendLogErr != nil {
		return m.AppendLogErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.logs[e.PaymentID] = append(m.logs[e.PaymentID], &cp)
	return nil
}

func (m *MockIntentRepo) ListLogs(ctx context.Context, qx repository.Tx, paymentID string) ([]*model.PaymentLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.PaymentLogEntry, len(m.logs[paymentID]))
	copy(out, m.logs[paymentID])
	return out, nil
}

func (m *MockIntentRepo) ListPendingOlderThan(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentIntent
	for _, p := range m.byID {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SetEntitlements links the entitlement store so
// ListSucceededWithoutEntitlement can answer.
func (m *MockIntentRepo) SetEntitlements(e *MockEntitlementRepo) { m.entitlements = e }

func (m *MockIntentRepo) ListSucceededWithoutEntitlement(ctx context.Context, qx repository.Tx, limit int) ([]*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentIntent
	for _, p := range m.byID {
		if p.Status != model.PaymentStatusSucceeded {
			continue
		}
		if m.entitlements != nil {
			if _, err := m.entitlements.Find(ctx, nil, p.PayerID, p.Subject); err == nil {
				continue
			}
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockIntentRepo) ListDoubleCharged(ctx context.Context, qx repository.Tx, limit int) ([]*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	earliest := make(map[string]*model.PaymentIntent)
	for _, p := range m.byID {
		if p.Status != model.PaymentStatusSucceeded {
			continue
		}
		k := p.PayerID + "/" + p.Subject.String()
		first, ok := earliest[k]
		if !ok || p.CreatedAt.Before(first.CreatedAt) || (p.CreatedAt.Equal(first.CreatedAt) && p.ID < first.ID) {
			earliest[k] = p
		}
	}
	var out []*model.PaymentIntent
	for _, p := range m.byID {
		if p.Status != model.PaymentStatusSucceeded {
			continue
		}
		if earliest[p.PayerID+"/"+p.Subject.String()].ID == p.ID {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockIntentRepo) ListSucceededByOwner(ctx context.Context, qx repository.Tx, ownerID string, offset, limit int) ([]*model.PaymentIntent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.byOwner[ownerID]
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*model.PaymentIntent, end-offset)
	copy(out, all[offset:end])
	return out, total, nil
}

func (m *MockIntentRepo) SumSucceededByOwnerSince(ctx context.Context, qx repository.Tx, ownerID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.byOwner[ownerID] {
		if p.Status == model.PaymentStatusSucceeded && !p.CreatedAt.Before(since) {
			sum += p.Amount
		}
	}
	return sum, nil
}

// AddOwnerIntent registers an earnings fixture for ListSucceededByOwner and
// SumSucceededByOwnerSince.
func (m *MockIntentRepo) AddOwnerIntent(ownerID string, p *model.PaymentIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byOwner[ownerID] = append(m.byOwner[ownerID], &cp)
}

// CountIntents reports how many intent rows exist.
func (m *MockIntentRepo) CountIntents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// CountLogs reports how many audit entries with the given action exist for
// the payment.
func (m *MockIntentRepo) CountLogs(paymentID string, action model.LogAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.logs[paymentID] {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Seed inserts an intent without the duplicate-key check.
func (m *MockIntentRepo) Seed(p *model.PaymentIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
}

// ---- Mock EntitlementRepository ----

type MockEntitlementRepo struct {
	mu    sync.Mutex
	store map[string]*model.EntitlementRecord // key: userID + "/" + subject

	CreateErr error
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{store: make(map[string]*model.EntitlementRecord)}
}

func entKey(userID string, subject model.SubjectRef) string {
	return userID + "/" + subject.String()
}

func (m *MockEntitlementRepo) CreateIfAbsent(ctx context.Context, qx repository.Tx, rec *model.EntitlementRecord) (*model.EntitlementRecord, bool, error) {
	if m.CreateErr != nil {
		return nil, false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entKey(rec.UserID, rec.Subject)
	if existing, ok := m.store[k]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *rec
	m.store[k] = &cp
	out := cp
	return &out, true, nil
}

func (m *MockEntitlementRepo) Find(ctx context.Context, qx repository.Tx, userID string, subject model.SubjectRef) (*model.EntitlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.store[entKey(userID, subject)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockEntitlementRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.EntitlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EntitlementRecord
	for _, rec := range m.store {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockEntitlementRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// Seed inserts a record directly.
func (m *MockEntitlementRepo) Seed(rec *model.EntitlementRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[entKey(rec.UserID, rec.Subject)] = &cp
}

// -----------------------------
// Adapters
// -----------------------------

// MockGateway counts charges and delegates to ChargeFunc.
type MockGateway struct {
	mu      sync.Mutex
	charges []adapter.ChargeRequest

	ChargeFunc func(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	m.mu.Lock()
	m.charges = append(m.charges, req)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &adapter.ChargeResult{ProviderRef: "ref-" + ulid.Make().String()}, nil
}

func (m *MockGateway) ChargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

func (m *MockGateway) LastCharge() adapter.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.charges) == 0 {
		return adapter.ChargeRequest{}
	}
	return m.charges[len(m.charges)-1]
}

// ---- Mock SubjectCatalog ----

type MockCatalog struct {
	mu       sync.Mutex
	subjects map[string]*model.SubjectInfo // key: ref.String()
}

var _ adapter.SubjectCatalog = (*MockCatalog)(nil)

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{subjects: make(map[string]*model.SubjectInfo)}
}

func (m *MockCatalog) Put(ref model.SubjectRef, info *model.SubjectInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *info
	m.subjects[ref.String()] = &cp
}

func (m *MockCatalog) Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.subjects[ref.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	cp := *info
	return &cp, nil
}

// ---- Mock ReceiptNotifier ----

// MockNotifier pushes receipts into a buffered channel so tests can wait for
// the fire-and-forget send.
type MockNotifier struct {
	Received chan adapter.Receipt
	SendErr  error
}

var _ adapter.ReceiptNotifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Received: make(chan adapter.Receipt, 16)}
}

func (m *MockNotifier) SendReceipt(ctx context.Context, r adapter.Receipt) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Received <- r
	return nil
}
