package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

var ErrDuplicate = errors.New("duplicate idempotency key")

type CreateOrderItemInput struct {
	ProductID string
	Quantity  int
	Notes     string
	AddonIDs  []string
}

type CreateOrderInput struct {
	Principal        Principal
	IdempotencyKey   string
	Channel          domain.Channel
	Customer         domain.Customer
	Items            []CreateOrderItemInput
	DeliveryFeeCents int64
	DiscountCents    int64
	// CollectPayment requests an up-front PIX charge through the tenant's
	// configured gateway.
	CollectPayment bool
}

type CreateOrderOutput struct {
	Order   *domain.Order
	Payment *domain.Payment
}

// CreateOrder validates line items against current catalog pricing, computes
// totals server-side, persists the order in PENDING and optionally requests a
// PIX charge.
type CreateOrder struct {
	orders    OrderRepo
	payments  PaymentRepo
	catalog   CatalogRepo
	providers ProviderFactory
	gate      AccessGate
	notifier  Notifier
	idem      IdempotencyStore
	log       *slog.Logger

	chargeTimeout time.Duration
}

func NewCreateOrder(
	orders OrderRepo,
	payments PaymentRepo,
	catalog CatalogRepo,
	providers ProviderFactory,
	gate AccessGate,
	notifier Notifier,
	idem IdempotencyStore,
	log *slog.Logger,
	chargeTimeout time.Duration,
) *CreateOrder {
	if chargeTimeout <= 0 {
		chargeTimeout = 8 * time.Second
	}
	return &CreateOrder{
		orders: orders, payments: payments, catalog: catalog,
		providers: providers, gate: gate, notifier: notifier, idem: idem,
		log: log, chargeTimeout: chargeTimeout,
	}
}

func (uc *CreateOrder) Execute(ctx context.Context, in CreateOrderInput) (CreateOrderOutput, error) {
	if err := allow(ctx, uc.gate, in.Principal, "orders", "create"); err != nil {
		return CreateOrderOutput{}, err
	}

	tenant := in.Principal.TenantID

	// Fast path: a retried request returns the order it already created; if
	// the charge was interrupted mid-flight it is re-requested below (charge
	// creation is idempotent per payment id).
	if in.IdempotencyKey != "" {
		if id, ok, _ := uc.idem.Recall(ctx, tenant, in.IdempotencyKey); ok {
			return uc.resume(ctx, tenant, id, in.CollectPayment)
		}
	}

	order, err := uc.buildOrder(ctx, tenant, in)
	if err != nil {
		return CreateOrderOutput{}, err
	}

	if in.IdempotencyKey != "" {
		ok, err := uc.idem.TryLock(ctx, tenant, in.IdempotencyKey)
		if err != nil {
			return CreateOrderOutput{}, err
		}
		if !ok {
			return CreateOrderOutput{}, ErrDuplicate
		}
	}

	if err := uc.orders.Create(ctx, order); err != nil {
		return CreateOrderOutput{}, fmt.Errorf("persist order: %w", err)
	}
	if in.IdempotencyKey != "" {
		_ = uc.idem.Remember(ctx, tenant, in.IdempotencyKey, order.ID)
	}

	notify(ctx, uc.notifier, uc.log, OrderEvent{
		TenantID: tenant, OrderID: order.ID,
		Type: EventNewOrderReceived, NewStatus: string(order.Status),
		At: time.Now().UTC(),
	})

	out := CreateOrderOutput{Order: order}
	if !in.CollectPayment {
		return out, nil
	}

	// The configured provider is recorded on the payment row before the
	// charge exists: webhook lookups key on (provider, external_id), so a
	// payment without its provider can never be reconciled.
	adapter, providerName, err := uc.providers.ForTenant(ctx, tenant)
	if err != nil {
		return out, err
	}

	payment := &domain.Payment{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		TenantID: tenant,
		Amount:   order.Total,
		Method:   domain.MethodPIX,
		Provider: providerName,
		Status:   domain.PaymentPending,
	}
	if err := uc.payments.Create(ctx, payment); err != nil {
		return out, fmt.Errorf("persist payment: %w", err)
	}
	out.Payment = payment

	if err := uc.requestCharge(ctx, adapter, order, payment); err != nil {
		return out, err
	}
	return out, nil
}

// resume replays an idempotent retry: the order exists; a still-chargeless
// pending payment gets another CreateCharge attempt.
func (uc *CreateOrder) resume(ctx context.Context, tenant, orderID string, collect bool) (CreateOrderOutput, error) {
	order, err := uc.orders.Get(ctx, tenant, orderID)
	if err != nil {
		return CreateOrderOutput{}, err
	}
	out := CreateOrderOutput{Order: order}
	if !collect {
		return out, nil
	}
	payment, err := uc.payments.ActiveByOrder(ctx, tenant, orderID)
	if err != nil {
		return out, err
	}
	out.Payment = payment
	if payment != nil && payment.Status == domain.PaymentPending && payment.ExternalID == "" {
		adapter, _, err := uc.providers.ForTenant(ctx, tenant)
		if err != nil {
			return out, err
		}
		if err := uc.requestCharge(ctx, adapter, order, payment); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (uc *CreateOrder) buildOrder(ctx context.Context, tenant string, in CreateOrderInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("items are required")
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		prod, err := uc.catalog.GetProduct(ctx, tenant, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, err)
		}
		if !prod.Active {
			return nil, fmt.Errorf("product %s is not available", it.ProductID)
		}
		item := domain.OrderItem{
			ProductID:      prod.ID,
			Name:           prod.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: prod.PriceCents, // catalog snapshot, never the client's number
			Notes:          it.Notes,
		}
		for _, aid := range it.AddonIDs {
			addon, ok := prod.Addons[aid]
			if !ok {
				return nil, fmt.Errorf("product %s: unknown addon %s", it.ProductID, aid)
			}
			item.Addons = append(item.Addons, domain.AddonSelection{
				AddonID: addon.ID, Name: addon.Name, PriceCents: addon.PriceCents,
			})
		}
		items = append(items, item)
	}

	order := &domain.Order{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Channel:     in.Channel,
		Customer:    in.Customer,
		Items:       items,
		DeliveryFee: domain.BRL(in.DeliveryFeeCents),
		Discount:    domain.BRL(in.DiscountCents),
		Status:      domain.OrderPending,
		CreatedAt:   time.Now().UTC(),
	}
	order.ComputeTotals()
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

func (uc *CreateOrder) requestCharge(ctx context.Context, provider ChargeProvider, order *domain.Order, payment *domain.Payment) error {
	cctx, cancel := context.WithTimeout(ctx, uc.chargeTimeout)
	defer cancel()

	res, err := provider.CreateCharge(cctx, ChargeRequest{
		PaymentID:      payment.ID,
		IdempotencyKey: chargeIdempotencyKey(payment.ID),
		Amount:         payment.Amount,
		Description:    fmt.Sprintf("order %s", order.ID),
		CustomerName:   order.Customer.Name,
		CustomerEmail:  order.Customer.Email,
		ExpiresIn:      time.Hour,
	})
	if err != nil {
		// Permanent gateway failures close the payment; transient ones leave
		// it PENDING so the same idempotency key can retry the charge.
		if errors.Is(err, domain.ErrConfigurationInvalid) || errors.Is(err, domain.ErrProviderRejected) {
			payment.Status = domain.PaymentFailed
			payment.FailureReason = err.Error()
			if _, uerr := uc.payments.UpdateStatus(ctx, payment, payment.Version); uerr != nil {
				uc.log.Error("mark payment failed", "payment_id", payment.ID, "err", uerr)
			}
		}
		return err
	}

	payment.ExternalID = res.ExternalID
	payment.QRCode = res.QRCode
	payment.ExpiresAt = res.ExpiresAt
	payment.LastProviderResponse = res.RawEcho
	if ok, err := uc.payments.SetCharge(ctx, payment, payment.Version); err != nil {
		return fmt.Errorf("record charge: %w", err)
	} else if !ok {
		return domain.ErrConcurrentModification
	}
	return nil
}

// chargeIdempotencyKey derives a deterministic gateway key from the payment
// id (Gerencianet txids must be 26-35 alphanumeric chars).
func chargeIdempotencyKey(paymentID string) string {
	return "pay" + strings.ReplaceAll(paymentID, "-", "")
}

func allow(ctx context.Context, gate AccessGate, p Principal, module, op string) error {
	if p.System {
		return nil
	}
	ok, err := gate.Allow(ctx, p, module, op)
	if err != nil {
		return fmt.Errorf("access check: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func notify(ctx context.Context, n Notifier, log *slog.Logger, ev OrderEvent) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, ev); err != nil {
		log.Error("notification publish failed", "type", ev.Type, "order_id", ev.OrderID, "err", err)
	}
}
