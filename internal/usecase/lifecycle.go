package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

// Lifecycle owns the staff-facing order operations. Every transition goes
// through the pure guard and is persisted under the order's version token; a
// stale token triggers exactly one reload-and-retry before surfacing
// ErrConcurrentModification or ErrInvalidTransition against the fresh state.
type Lifecycle struct {
	orders    OrderRepo
	payments  PaymentRepo
	providers ProviderFactory
	gate      AccessGate
	notifier  Notifier
	cache     OrderCache
	log       *slog.Logger

	cancelTimeout time.Duration
}

func NewLifecycle(
	orders OrderRepo,
	payments PaymentRepo,
	providers ProviderFactory,
	gate AccessGate,
	notifier Notifier,
	cache OrderCache,
	log *slog.Logger,
) *Lifecycle {
	return &Lifecycle{
		orders: orders, payments: payments, providers: providers,
		gate: gate, notifier: notifier, cache: cache, log: log,
		cancelTimeout: 5 * time.Second,
	}
}

// AcceptOrder moves PENDING -> CONFIRMED and records the prep estimate.
func (l *Lifecycle) AcceptOrder(ctx context.Context, p Principal, orderID string, estPrepMin int, notes string) (*domain.Order, error) {
	if err := allow(ctx, l.gate, p, "orders", "accept"); err != nil {
		return nil, err
	}
	order, err := l.transition(ctx, p.TenantID, orderID, domain.OrderConfirmed, func(o *domain.Order) {
		o.EstimatedPrepMin = estPrepMin
		if notes != "" {
			o.Notes = notes
		}
	})
	if err != nil {
		return nil, err
	}
	l.setCache(ctx, order)
	notify(ctx, l.notifier, l.log, OrderEvent{
		TenantID: order.TenantID, OrderID: order.ID,
		Type: EventOrderAccepted, NewStatus: string(order.Status), At: time.Now().UTC(),
	})
	return order, nil
}

// RejectOrder moves PENDING -> REJECTED and force-cancels any active payment.
// The gateway-side cancel is best-effort; local state is CANCELLED regardless
// of provider latency.
func (l *Lifecycle) RejectOrder(ctx context.Context, p Principal, orderID, reason, notes string) (*domain.Order, error) {
	if err := allow(ctx, l.gate, p, "orders", "reject"); err != nil {
		return nil, err
	}
	order, err := l.transition(ctx, p.TenantID, orderID, domain.OrderRejected, func(o *domain.Order) {
		o.Reason = reason
		if notes != "" {
			o.Notes = notes
		}
	})
	if err != nil {
		return nil, err
	}
	l.closeActivePayment(ctx, order)
	l.setCache(ctx, order)
	notify(ctx, l.notifier, l.log, OrderEvent{
		TenantID: order.TenantID, OrderID: order.ID,
		Type: EventOrderStatusChanged, NewStatus: string(order.Status), At: time.Now().UTC(),
	})
	return order, nil
}

// AdvanceStatus applies one guarded step toward fulfilment; skipping states
// is rejected by the guard.
func (l *Lifecycle) AdvanceStatus(ctx context.Context, p Principal, orderID string, target domain.OrderStatus) (*domain.Order, error) {
	if err := allow(ctx, l.gate, p, "orders", "advance"); err != nil {
		return nil, err
	}
	order, err := l.transition(ctx, p.TenantID, orderID, target, nil)
	if err != nil {
		return nil, err
	}
	l.setCache(ctx, order)
	notify(ctx, l.notifier, l.log, OrderEvent{
		TenantID: order.TenantID, OrderID: order.ID,
		Type: EventOrderStatusChanged, NewStatus: string(order.Status), At: time.Now().UTC(),
	})
	return order, nil
}

// CancelOrder is legal from any non-terminal state except OUT_FOR_DELIVERY.
// It cascades to the payment: an unsettled charge is cancelled, a settled one
// refunded.
func (l *Lifecycle) CancelOrder(ctx context.Context, p Principal, orderID, reason string) (*domain.Order, error) {
	if err := allow(ctx, l.gate, p, "orders", "cancel"); err != nil {
		return nil, err
	}
	order, err := l.transition(ctx, p.TenantID, orderID, domain.OrderCancelled, func(o *domain.Order) {
		o.Reason = reason
	})
	if err != nil {
		return nil, err
	}
	l.closeActivePayment(ctx, order)
	l.refundSettledPayment(ctx, order)
	l.setCache(ctx, order)
	notify(ctx, l.notifier, l.log, OrderEvent{
		TenantID: order.TenantID, OrderID: order.ID,
		Type: EventOrderStatusChanged, NewStatus: string(order.Status), At: time.Now().UTC(),
	})
	return order, nil
}

// OnPaymentConfirmed is the internal callback from the reconciliation engine,
// running on its transaction-scoped repo so the order auto-advance commits
// with the payment mutation. Returns true when the order moved
// PENDING -> CONFIRMED.
func (l *Lifecycle) OnPaymentConfirmed(ctx context.Context, orders OrderRepo, o *domain.Order) (bool, error) {
	if o.Status != domain.OrderPending {
		return false, nil
	}
	next, err := domain.NextOrderStatus(o.Status, domain.OrderConfirmed, o.Channel)
	if err != nil {
		return false, err
	}
	prev := o.Version
	o.Status = next
	ok, err := orders.UpdateStatus(ctx, o, prev)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrConcurrentModification
	}
	return true, nil
}

// transition loads, guards and persists a single status change. Exactly one
// retry against freshly reloaded state when the version token went stale; if
// the reloaded state no longer permits the move the caller gets
// ErrInvalidTransition, never a silent overwrite.
func (l *Lifecycle) transition(ctx context.Context, tenantID, orderID string, target domain.OrderStatus, mutate func(*domain.Order)) (*domain.Order, error) {
	order, err := l.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		next, err := domain.NextOrderStatus(order.Status, target, order.Channel)
		if err != nil {
			return nil, err
		}
		updated := *order
		updated.Status = next
		if mutate != nil {
			mutate(&updated)
		}
		ok, err := l.orders.UpdateStatus(ctx, &updated, order.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			updated.Version = order.Version + 1
			return &updated, nil
		}
		if attempt >= 1 {
			return nil, domain.ErrConcurrentModification
		}
		order, err = l.orders.Get(ctx, tenantID, orderID)
		if err != nil {
			return nil, err
		}
	}
}

// closeActivePayment forces a non-terminal payment to CANCELLED and asks the
// gateway to drop the charge; the gateway call never blocks the local state.
func (l *Lifecycle) closeActivePayment(ctx context.Context, order *domain.Order) {
	payment, err := l.payments.ActiveByOrder(ctx, order.TenantID, order.ID)
	if err != nil {
		l.log.Error("load active payment", "order_id", order.ID, "err", err)
		return
	}
	if payment == nil {
		return
	}
	if err := l.forcePaymentStatus(ctx, payment, domain.PaymentCancelled, "order "+string(order.Status)); err != nil {
		l.log.Error("cancel payment", "payment_id", payment.ID, "err", err)
		return
	}
	if payment.ExternalID != "" {
		l.providerCancel(ctx, order.TenantID, payment.ExternalID)
	}
}

func (l *Lifecycle) refundSettledPayment(ctx context.Context, order *domain.Order) {
	payment, err := l.payments.GetPaidByOrder(ctx, order.TenantID, order.ID)
	if err != nil || payment == nil {
		return
	}
	if err := l.forcePaymentStatus(ctx, payment, domain.PaymentRefunded, "order cancelled"); err != nil {
		l.log.Error("refund payment", "payment_id", payment.ID, "err", err)
		return
	}
	provider, _, err := l.providers.ForTenant(ctx, order.TenantID)
	if err != nil {
		l.log.Error("resolve provider for refund", "tenant_id", order.TenantID, "err", err)
		return
	}
	rctx, cancel := context.WithTimeout(context.Background(), l.cancelTimeout)
	defer cancel()
	if err := provider.RefundCharge(rctx, payment.ExternalID, payment.Amount); err != nil {
		l.log.Error("provider refund failed", "payment_id", payment.ID, "err", err)
	}
}

func (l *Lifecycle) forcePaymentStatus(ctx context.Context, payment *domain.Payment, target domain.PaymentStatus, reason string) error {
	for attempt := 0; ; attempt++ {
		next, err := domain.NextPaymentStatus(payment.Status, target)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) && payment.Status == target {
				return nil // already there
			}
			return err
		}
		updated := *payment
		updated.Status = next
		updated.FailureReason = reason
		ok, err := l.payments.UpdateStatus(ctx, &updated, payment.Version)
		if err != nil {
			return err
		}
		if ok {
			*payment = updated
			payment.Version++
			return nil
		}
		if attempt >= 1 {
			return domain.ErrConcurrentModification
		}
		payment, err = l.payments.Get(ctx, payment.TenantID, payment.ID)
		if err != nil {
			return err
		}
	}
}

// providerCancel is fire-and-forget toward the gateway with its own deadline,
// detached from the request context so a slow gateway cannot block staff
// actions.
func (l *Lifecycle) providerCancel(ctx context.Context, tenantID, externalID string) {
	provider, _, err := l.providers.ForTenant(ctx, tenantID)
	if err != nil {
		l.log.Error("resolve provider for cancel", "tenant_id", tenantID, "err", err)
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), l.cancelTimeout)
	defer cancel()
	if err := provider.CancelCharge(cctx, externalID); err != nil {
		l.log.Warn("provider cancel failed", "external_id", externalID, "err", err)
	}
}

func (l *Lifecycle) setCache(ctx context.Context, order *domain.Order) {
	if l.cache == nil {
		return
	}
	if err := l.cache.SetStatus(ctx, order.TenantID, order.ID, string(order.Status)); err != nil {
		l.log.Warn("status cache write failed", "order_id", order.ID, "err", err)
	}
}

// GetOrder is the staff read path.
func (l *Lifecycle) GetOrder(ctx context.Context, p Principal, orderID string) (*domain.Order, error) {
	if err := allow(ctx, l.gate, p, "orders", "read"); err != nil {
		return nil, err
	}
	o, err := l.orders.Get(ctx, p.TenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}
