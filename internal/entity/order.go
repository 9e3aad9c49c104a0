package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderConfirmed      OrderStatus = "CONFIRMED"
	OrderPreparing      OrderStatus = "PREPARING"
	OrderReady          OrderStatus = "READY"
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRejected       OrderStatus = "REJECTED"
)

// Channel is how the order reached the restaurant.
type Channel string

const (
	ChannelDelivery Channel = "DELIVERY"
	ChannelCounter  Channel = "COUNTER"
	ChannelTable    Channel = "TABLE"
)

// orderTransitions enumerates every legal move. OUT_FOR_DELIVERY is further
// restricted to the delivery channel by NextOrderStatus.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderRejected, OrderCancelled},
	OrderConfirmed:      {OrderPreparing, OrderCancelled},
	OrderPreparing:      {OrderReady, OrderCancelled},
	OrderReady:          {OrderOutForDelivery, OrderDelivered, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered},
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderDelivered, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// NextOrderStatus is the pure transition guard. It returns the target when
// the move is listed for the current state (and channel), or
// ErrInvalidTransition. The caller persists the result under the order's
// version token.
func NextOrderStatus(current, target OrderStatus, ch Channel) (OrderStatus, error) {
	if target == OrderOutForDelivery && ch != ChannelDelivery {
		return current, fmt.Errorf("%w: %s -> %s on channel %s", ErrInvalidTransition, current, target, ch)
	}
	for _, allowed := range orderTransitions[current] {
		if allowed == target {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

type AddonSelection struct {
	AddonID    string `json:"addonId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"` // snapshot at order time
}

type OrderItem struct {
	ProductID      string           `json:"productId"`
	Name           string           `json:"name"`
	Quantity       int              `json:"quantity"`
	UnitPriceCents int64            `json:"unitPriceCents"` // snapshot, never client-supplied
	Notes          string           `json:"notes,omitempty"`
	Addons         []AddonSelection `json:"addons,omitempty"`
}

// LineTotal is quantity * (unit price + addons).
func (it OrderItem) LineTotal() int64 {
	per := it.UnitPriceCents
	for _, a := range it.Addons {
		per += a.PriceCents
	}
	return per * int64(it.Quantity)
}

type Customer struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	TableRef string `json:"tableRef,omitempty"` // table channel only
}

type Order struct {
	ID       string
	TenantID string
	Channel  Channel
	Customer Customer
	Items    []OrderItem

	Subtotal    Money
	DeliveryFee Money
	Discount    Money
	Total       Money

	Status OrderStatus
	// Reason is set on rejection/cancellation; orders are never deleted.
	Reason           string
	EstimatedPrepMin int
	Notes            string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic-concurrency token; bumped on every write.
	Version int64
}

// ComputeTotals recomputes subtotal and total from the item snapshots.
// Client-submitted totals are ignored on every mutation path.
func (o *Order) ComputeTotals() {
	var sub int64
	for _, it := range o.Items {
		sub += it.LineTotal()
	}
	cur := o.Subtotal.Currency
	if cur == "" {
		cur = "BRL"
	}
	o.Subtotal = Money{Cents: sub, Currency: cur}
	o.Total = Money{Cents: sub + o.DeliveryFee.Cents - o.Discount.Cents, Currency: cur}
}

func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order has no items")
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("item %s: quantity must be positive", it.ProductID)
		}
	}
	return o.Total.Validate()
}
