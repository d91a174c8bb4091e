// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type noTx struct{}

// mockTxManager runs the callback inline. A mutex serializes "transactions"
// so concurrent-grant tests observe the same winner/loser behavior the row
// lock gives us in Postgres.
type mockTxManager struct {
	mu sync.Mutex
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, noTx{})
}

// memEntitlementRepo is a small in-memory ledger used by unit tests.
type memEntitlementRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.EntitlementRequest
	saveErr error // used by tests to simulate save failures

	// FindByRemoteTxFunc overrides FindByRemoteTransactionID when set, so
	// tests can model an uncommitted winner that the in-transaction lookup
	// cannot see yet.
	FindByRemoteTxFunc func(ctx context.Context, tx repository.Tx, remoteTxID string) (*model.EntitlementRequest, error)
}

func newMemEntitlementRepo() *memEntitlementRepo {
	return &memEntitlementRepo{store: make(map[string]*model.EntitlementRequest)}
}

func (m *memEntitlementRepo) Save(ctx context.Context, _ repository.Tx, e *model.EntitlementRequest) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *memEntitlementRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.EntitlementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEntitlementRepo) FindBySubjectAndProduct(ctx context.Context, _ repository.Tx, subjectUserID, productID string) (*model.EntitlementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Mirror the SQL ordering: settled entries win over pending, newest first.
	var best *model.EntitlementRequest
	for _, e := range m.store {
		if e.SubjectUserID != subjectUserID || e.Product.ProductID != productID {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		bestSettled := best.State != model.PaymentStatePending
		eSettled := e.State != model.PaymentStatePending
		if eSettled && !bestSettled {
			best = e
		} else if eSettled == bestSettled && e.CreatedAt.After(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memEntitlementRepo) FindByRemoteTransactionID(ctx context.Context, tx repository.Tx, remoteTxID string) (*model.EntitlementRequest, error) {
	if m.FindByRemoteTxFunc != nil {
		return m.FindByRemoteTxFunc(ctx, tx, remoteTxID)
	}
	return m.findByRemoteTx(remoteTxID)
}

func (m *memEntitlementRepo) findByRemoteTx(remoteTxID string) (*model.EntitlementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.store {
		if e.RemoteTransactionID == remoteTxID && remoteTxID != "" {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memEntitlementRepo) FindByLocalOrderID(ctx context.Context, _ repository.Tx, orderID string) (*model.EntitlementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.store {
		if e.LocalOrderID == orderID && orderID != "" {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memEntitlementRepo) MarkPaidIfPending(ctx context.Context, _ repository.Tx, id string, proof *model.VerifiedTransaction, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if e.State != model.PaymentStatePending {
		return false, nil
	}
	// Mirror the partial unique index on remote_transaction_id.
	if proof.Provider == model.ProviderRemoteReceipt && proof.RemoteTransactionID != "" {
		for _, other := range m.store {
			if other.ID != id && other.RemoteTransactionID == proof.RemoteTransactionID {
				return false, domain.ErrTransactionConsumed
			}
		}
	}
	e.State = model.PaymentStatePaid
	e.PaidAt = &paidAt
	e.UpdatedAt = time.Now()
	switch proof.Provider {
	case model.ProviderLocalOrder:
		e.LocalPaymentID = proof.LocalPaymentID
		e.LocalSignature = proof.LocalSignature
	case model.ProviderRemoteReceipt:
		e.RemoteTransactionID = proof.RemoteTransactionID
		e.RemoteOriginalTransactionID = proof.RemoteOriginalTransactionID
	}
	return true, nil
}

func (m *memEntitlementRepo) MarkFulfilledIfPaid(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if e.State != model.PaymentStatePaid {
		return false, nil
	}
	e.State = model.PaymentStateFulfilled
	e.UpdatedAt = time.Now()
	return true, nil
}

func (m *memEntitlementRepo) ListPendingLocalOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.EntitlementRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EntitlementRequest
	for _, e := range m.store {
		if e.State == model.PaymentStatePending && e.Provider == model.ProviderLocalOrder && e.CreatedAt.Before(olderThan) {
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// memProductRepo holds the catalog for tests.
type memProductRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Product
}

func newMemProductRepo(products ...*model.Product) *memProductRepo {
	m := &memProductRepo{store: make(map[string]*model.Product)}
	for _, p := range products {
		cp := *p
		m.store[p.ID] = &cp
	}
	return m
}

func (m *memProductRepo) Save(ctx context.Context, _ repository.Tx, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memProductRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProductRepo) IncrementEnrollment(ctx context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.EnrollmentCount++
	return nil
}

func (m *memProductRepo) enrollments(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.store[id]; ok {
		return p.EnrollmentCount
	}
	return 0
}

// memUnlockRepo mimics the unique (subject, product) constraint.
type memUnlockRepo struct {
	mu    sync.Mutex
	store map[string]*model.Unlock
}

func newMemUnlockRepo() *memUnlockRepo {
	return &memUnlockRepo{store: make(map[string]*model.Unlock)}
}

func unlockKey(subjectUserID, productID string) string {
	return subjectUserID + "|" + productID
}

func (m *memUnlockRepo) Append(ctx context.Context, _ repository.Tx, u *model.Unlock) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := unlockKey(u.SubjectUserID, u.ProductID)
	if _, ok := m.store[k]; ok {
		return false, nil
	}
	cp := *u
	m.store[k] = &cp
	return true, nil
}

func (m *memUnlockRepo) ListBySubject(ctx context.Context, _ repository.Tx, subjectUserID string) ([]*model.Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Unlock
	for _, u := range m.store {
		if u.SubjectUserID == subjectUserID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUnlockRepo) Exists(ctx context.Context, _ repository.Tx, subjectUserID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[unlockKey(subjectUserID, productID)]
	return ok, nil
}

// mockGateway is an OrderGateway with overridable behavior.
type mockGateway struct {
	mu          sync.Mutex
	calls       int
	CreateFunc  func(ctx context.Context, amount int64, currency, receiptRef string) (string, error)
	InquireFunc func(ctx context.Context, providerOrderID string) (*adapter.OrderInquiry, error)
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreateOrder(ctx context.Context, amount int64, currency, receiptRef string) (string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if g.CreateFunc != nil {
		return g.CreateFunc(ctx, amount, currency, receiptRef)
	}
	return fmt.Sprintf("PO-%d", n), nil
}

func (g *mockGateway) QueryOrder(ctx context.Context, providerOrderID string) (*adapter.OrderInquiry, error) {
	if g.InquireFunc != nil {
		return g.InquireFunc(ctx, providerOrderID)
	}
	return &adapter.OrderInquiry{Paid: false}, nil
}

// mockReceiptVerifier returns a canned proof or error.
type mockReceiptVerifier struct {
	VerifyFunc func(ctx context.Context, receiptBlob, expectedProductID string) (*model.VerifiedTransaction, error)
}

func (m *mockReceiptVerifier) Verify(ctx context.Context, receiptBlob, expectedProductID string) (*model.VerifiedTransaction, error) {
	return m.VerifyFunc(ctx, receiptBlob, expectedProductID)
}

// mockDispatcher records dispatched side effects.
type mockDispatcher struct {
	mu       sync.Mutex
	notified []model.NotificationKind
	emitted  []string
}

func (d *mockDispatcher) Notify(_ context.Context, _ string, kind model.NotificationKind, _ map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notified = append(d.notified, kind)
}

func (d *mockDispatcher) Emit(_ context.Context, _ string, event string, _ map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emitted = append(d.emitted, event)
}

func (d *mockDispatcher) notifyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notified)
}

func (d *mockDispatcher) kinds() []model.NotificationKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.NotificationKind, len(d.notified))
	copy(out, d.notified)
	return out
}
