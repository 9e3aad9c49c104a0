package usecase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

// Principal is the acting identity extracted by the authn middleware (or the
// service identity for internal listeners). Every mutating operation is
// re-validated against the access-control service before it runs.
type Principal struct {
	ID       string
	TenantID string
	System   bool // internal callers (kafka listener, reconciliation) skip the gate
}

// AccessGate is the tenant access-control oracle: "does principal P have
// operation O on module M for tenant T". Treated as opaque; fail closed.
type AccessGate interface {
	Allow(ctx context.Context, p Principal, module, operation string) (bool, error)
}

type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, tenantID, id string) (*domain.Order, error)
	// UpdateStatus persists a guarded transition under the version token.
	// Returns false when the token is stale (concurrent writer won).
	UpdateStatus(ctx context.Context, o *domain.Order, version int64) (bool, error)
}

type PaymentRepo interface {
	Create(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, tenantID, id string) (*domain.Payment, error)
	GetByExternalID(ctx context.Context, provider domain.PaymentProvider, externalID string) (*domain.Payment, error)
	// ActiveByOrder returns the non-terminal payment for the order, or
	// (nil, nil) when none exists.
	ActiveByOrder(ctx context.Context, tenantID, orderID string) (*domain.Payment, error)
	// GetPaidByOrder returns the PAID payment for the order, or (nil, nil).
	GetPaidByOrder(ctx context.Context, tenantID, orderID string) (*domain.Payment, error)
	// SetCharge records the provider's charge-creation response (external id,
	// QR payload, expiry, raw echo) on a pending payment.
	SetCharge(ctx context.Context, p *domain.Payment, version int64) (bool, error)
	UpdateStatus(ctx context.Context, p *domain.Payment, version int64) (bool, error)
}

// UnitOfWork runs fn inside a single database transaction so a payment
// transition and the order auto-advance it triggers commit atomically.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(orders OrderRepo, payments PaymentRepo) error) error
}

// CatalogRepo is the read-only pricing source. Client-submitted prices are
// never trusted; snapshots come from here.
type CatalogRepo interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
}

type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Active     bool
	Addons     map[string]ProductAddon // by addon id
}

type ProductAddon struct {
	ID         string
	Name       string
	PriceCents int64
}

// TenantPaymentConfig is a tenant's gateway configuration row; credentials
// feed the provider factory.
type TenantPaymentConfig struct {
	TenantID      string
	Provider      domain.PaymentProvider
	ClientID      string
	ClientSecret  string
	AccessToken   string
	WebhookSecret string
	PixKey        string
	Enabled       bool
}

type TenantConfigRepo interface {
	PaymentConfig(ctx context.Context, tenantID string) (*TenantPaymentConfig, error)
}

// ChargeRequest carries everything a gateway needs to create a PIX charge.
// IdempotencyKey is derived from the payment id so provider-side retries do
// not create duplicate charges.
type ChargeRequest struct {
	PaymentID      string
	IdempotencyKey string
	Amount         domain.Money
	Description    string
	CustomerName   string
	CustomerEmail  string
	ExpiresIn      time.Duration
}

type ChargeResult struct {
	ExternalID string
	QRCode     string // PIX copy-paste payload
	ExpiresAt  *time.Time
	Amount     domain.Money
	RawEcho    string
}

// WebhookRequest is the untrusted inbound notification exactly as received;
// adapters pick whatever transport material their gateway signs.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
	Query   url.Values
}

// WebhookResult is a trusted, provider-neutral view of one gateway event.
// Adapters return domain.ErrUntrustedWebhook instead of a best-effort guess
// when authenticity cannot be established.
type WebhookResult struct {
	EventID    string // provider-unique, for dedupe
	ExternalID string
	Status     domain.PaymentStatus
	PaidAmount *domain.Money
	PaidAt     *time.Time
	RawEcho    string
}

// ChargeProvider is the uniform gateway contract. One implementation per
// gateway; the orchestrator and reconciliation engine never branch on
// provider identity.
type ChargeProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	ParseWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error)
	// CancelCharge and RefundCharge are best-effort: callers force local
	// state regardless of gateway latency.
	CancelCharge(ctx context.Context, externalID string) error
	RefundCharge(ctx context.Context, externalID string, amount domain.Money) error
}

// ProviderFactory resolves the adapter for a tenant's configured gateway.
type ProviderFactory interface {
	// ForTenant also reports which provider the tenant is configured for,
	// so callers can record it on the payments they create.
	ForTenant(ctx context.Context, tenantID string) (ChargeProvider, domain.PaymentProvider, error)
	ForProvider(ctx context.Context, tenantID string, provider domain.PaymentProvider) (ChargeProvider, error)
}

// Notifier publishes to the real-time notification channel. Emission is
// best-effort: failures are logged by callers, never surfaced, and never roll
// back a state transition.
type Notifier interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// OrderCache mirrors order status for cheap dashboard reads; strictly
// best-effort.
type OrderCache interface {
	SetStatus(ctx context.Context, tenantID, orderID, status string) error
	GetStatus(ctx context.Context, tenantID, orderID string) (string, error)
}

// WebhookAuditRepo appends every authenticated webhook receipt for audit and
// manual review; append-only, independent of whether the event mutated state.
type WebhookAuditRepo interface {
	Insert(ctx context.Context, rec *WebhookAuditRecord) error
}

type WebhookAuditRecord struct {
	Provider   domain.PaymentProvider
	EventID    string
	ExternalID string
	Outcome    string
	Payload    []byte
	ReceivedAt time.Time
}
