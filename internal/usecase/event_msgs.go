package usecase

import "time"

// Event types published on the notification channel.
const (
	EventNewOrderReceived   = "order.received"
	EventOrderAccepted      = "order.accepted"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentConfirmed   = "payment.confirmed"
)

// OrderEvent is the single payload shape fanned out to tenant dashboards and
// per-order subscribers.
type OrderEvent struct {
	TenantID  string    `json:"tenantId"`
	OrderID   string    `json:"orderId"`
	Type      string    `json:"type"`
	NewStatus string    `json:"newStatus,omitempty"`
	At        time.Time `json:"at"`
}

// StatusChangedMsg arrives on Kafka from sibling services (the delivery
// tracker marks orders out-for-delivery/delivered). Applied through the same
// guarded transition as staff actions.
type StatusChangedMsg struct {
	TenantID string `json:"tenantId"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
}
