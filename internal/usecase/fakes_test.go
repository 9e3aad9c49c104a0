package usecase

import (
	"context"
	"sync"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

// In-memory fakes mirroring the MySQL adapters' semantics: version-token CAS
// under a mutex, so concurrency tests exercise the same serialization the
// database provides.

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*domain.Order{}}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) Get(_ context.Context, tenantID, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, o *domain.Order, version int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok || cur.Version != version {
		return false, nil
	}
	cp := *o
	cp.Version = version + 1
	r.orders[o.ID] = &cp
	return true, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[string]*domain.Payment{}}
}

func (r *fakePaymentRepo) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.payments {
		if ex.OrderID == p.OrderID && ex.Active() {
			return domain.ErrActivePaymentExists
		}
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakePaymentRepo) Get(_ context.Context, tenantID, id string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) GetByExternalID(_ context.Context, provider domain.PaymentProvider, externalID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.Provider == provider && p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePaymentRepo) ActiveByOrder(_ context.Context, tenantID, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TenantID == tenantID && p.OrderID == orderID && p.Active() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) GetPaidByOrder(_ context.Context, tenantID, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TenantID == tenantID && p.OrderID == orderID && p.Status == domain.PaymentPaid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) SetCharge(_ context.Context, p *domain.Payment, version int64) (bool, error) {
	return r.cas(p, version)
}

func (r *fakePaymentRepo) UpdateStatus(_ context.Context, p *domain.Payment, version int64) (bool, error) {
	return r.cas(p, version)
}

func (r *fakePaymentRepo) cas(p *domain.Payment, version int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.Version != version {
		return false, nil
	}
	cp := *p
	cp.Version = version + 1
	r.payments[p.ID] = &cp
	return true, nil
}

type fakeUoW struct {
	orders   *fakeOrderRepo
	payments *fakePaymentRepo
}

func (u *fakeUoW) Do(ctx context.Context, fn func(OrderRepo, PaymentRepo) error) error {
	return fn(u.orders, u.payments)
}

type fakeCatalog struct {
	products map[string]*Product
}

func (c *fakeCatalog) GetProduct(_ context.Context, _, productID string) (*Product, error) {
	p, ok := c.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type fakeGate struct {
	deny map[string]bool // "module.operation" -> deny
}

func (g *fakeGate) Allow(_ context.Context, _ Principal, module, op string) (bool, error) {
	return !g.deny[module+"."+op], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []OrderEvent
	fail   bool
}

func (n *fakeNotifier) Publish(_ context.Context, ev OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.DeadlineExceeded
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) byType(t string) []OrderEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []OrderEvent
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeIdemStore struct {
	mu     sync.Mutex
	locks  map[string]bool
	values map[string]string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{locks: map[string]bool{}, values: map[string]string{}}
}

func (s *fakeIdemStore) TryLock(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + ":" + key
	if s.locks[k] {
		return false, nil
	}
	s.locks[k] = true
	return true, nil
}

func (s *fakeIdemStore) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[scope+":"+key] = value
	return nil
}

func (s *fakeIdemStore) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[scope+":"+key]
	return v, ok, nil
}

type fakeCache struct {
	mu     sync.Mutex
	status map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{status: map[string]string{}} }

func (c *fakeCache) SetStatus(_ context.Context, tenantID, orderID, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[tenantID+":"+orderID] = status
	return nil
}

func (c *fakeCache) GetStatus(_ context.Context, tenantID, orderID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status[tenantID+":"+orderID], nil
}

type fakeProvider struct {
	mu            sync.Mutex
	createCalls   int
	cancelCalls   int
	refundCalls   int
	createErr     error
	cancelErr     error
	chargeResult  *ChargeResult
	webhookResult *WebhookResult
	webhookErr    error
}

func (p *fakeProvider) CreateCharge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.chargeResult != nil {
		return p.chargeResult, nil
	}
	return &ChargeResult{
		ExternalID: "ext-" + req.PaymentID,
		QRCode:     "00020126pix-copy-paste",
		Amount:     req.Amount,
	}, nil
}

func (p *fakeProvider) ParseWebhook(_ context.Context, _ WebhookRequest) (*WebhookResult, error) {
	if p.webhookErr != nil {
		return nil, p.webhookErr
	}
	return p.webhookResult, nil
}

func (p *fakeProvider) CancelCharge(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	return p.cancelErr
}

func (p *fakeProvider) RefundCharge(_ context.Context, _ string, _ domain.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundCalls++
	return nil
}

type fakeFactory struct {
	provider *fakeProvider
	name     domain.PaymentProvider
	err      error
}

func (f *fakeFactory) ForTenant(_ context.Context, _ string) (ChargeProvider, domain.PaymentProvider, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	name := f.name
	if name == "" {
		name = domain.ProviderGerencianet
	}
	return f.provider, name, nil
}

func (f *fakeFactory) ForProvider(_ context.Context, _ string, _ domain.PaymentProvider) (ChargeProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type fakeAudit struct {
	mu   sync.Mutex
	recs []*WebhookAuditRecord
}

func (a *fakeAudit) Insert(_ context.Context, rec *WebhookAuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}
