package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// OrderStatusChangedHandler applies status events from sibling services
// (delivery tracker, courier app) through the same guarded transition staff
// actions go through. Events run under a system principal, so the access
// gate is bypassed but the transition table is not.
type StatusAdvancer interface {
	AdvanceStatus(ctx context.Context, p usecase.Principal, orderID string, target domain.OrderStatus) (*domain.Order, error)
}

type OrderStatusChangedHandler struct {
	lifecycle StatusAdvancer
	log       *slog.Logger
}

func NewOrderStatusChangedHandler(lifecycle StatusAdvancer, log *slog.Logger) *OrderStatusChangedHandler {
	return &OrderStatusChangedHandler{lifecycle: lifecycle, log: log}
}

var statusByEvent = map[string]domain.OrderStatus{
	"OUT_FOR_DELIVERY": domain.OrderOutForDelivery,
	"DELIVERED":        domain.OrderDelivered,
	"READY":            domain.OrderReady,
}

func (h *OrderStatusChangedHandler) Handle(ctx context.Context, ev usecase.StatusChangedMsg) error {
	target, ok := statusByEvent[ev.Status]
	if !ok {
		// Unknown statuses are marked, not retried.
		h.log.Warn("ignoring unknown status event", "order_id", ev.OrderID, "status", ev.Status)
		return nil
	}

	p := usecase.Principal{TenantID: ev.TenantID, System: true}
	_, err := h.lifecycle.AdvanceStatus(ctx, p, ev.OrderID, target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		// Out-of-order or duplicate event; the order has moved on.
		h.log.Warn("stale status event", "order_id", ev.OrderID, "status", ev.Status)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		h.log.Warn("status event for unknown order", "order_id", ev.OrderID)
		return nil
	default:
		return fmt.Errorf("advance order %s to %s: %w", ev.OrderID, target, err)
	}
}
