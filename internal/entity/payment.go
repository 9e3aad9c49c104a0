package domain

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentExpired    PaymentStatus = "EXPIRED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const MethodPIX PaymentMethod = "PIX"

// PaymentProvider enumerates the configured gateways. The orchestrator and
// the reconciliation engine never branch on these values; the provider
// factory does.
type PaymentProvider string

const (
	ProviderGerencianet PaymentProvider = "GERENCIANET"
	ProviderMercadoPago PaymentProvider = "MERCADOPAGO"
)

// AUTHORIZED -> CANCELLED is included so a staff reject can force-cancel a
// charge the gateway already authorized but has not settled.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentAuthorized, PaymentPaid, PaymentExpired, PaymentFailed, PaymentCancelled},
	PaymentAuthorized: {PaymentPaid, PaymentFailed, PaymentCancelled},
	PaymentPaid:       {PaymentRefunded},
}

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentPaid, PaymentExpired, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// paymentRank orders states along the settlement path so stale webhook events
// (an AUTHORIZED arriving after PAID landed) can be recognized as no-ops.
var paymentRank = map[PaymentStatus]int{
	PaymentPending:    0,
	PaymentAuthorized: 1,
	PaymentPaid:       2,
	PaymentExpired:    2,
	PaymentFailed:     2,
	PaymentCancelled:  2,
	PaymentRefunded:   3,
}

// StaleFor reports whether an event targeting `target` is behind `current`:
// applying it would regress or re-apply settled state. PAID is terminal for
// every target except REFUNDED.
func (s PaymentStatus) StaleFor(target PaymentStatus) bool {
	if s == target {
		return true
	}
	if s.Terminal() && !(s == PaymentPaid && target == PaymentRefunded) {
		return true
	}
	return paymentRank[s] >= paymentRank[target]
}

// NextPaymentStatus is the pure transition guard for payments. Amount
// checking lives in the reconciliation engine, not here.
func NextPaymentStatus(current, target PaymentStatus) (PaymentStatus, error) {
	for _, allowed := range paymentTransitions[current] {
		if allowed == target {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, current, target)
}

type Payment struct {
	ID       string
	OrderID  string
	TenantID string

	// Amount is immutable after creation; reconciliation compares it against
	// the provider-reported paid amount and treats any mismatch as a hard
	// error.
	Amount   Money
	Method   PaymentMethod
	Provider PaymentProvider

	// ExternalID is the provider-assigned transaction id; empty until the
	// gateway responds to charge creation.
	ExternalID string

	Status        PaymentStatus
	FailureReason string

	// QRCode carries the renderable PIX payload (copy-paste text) returned by
	// the gateway.
	QRCode    string
	ExpiresAt *time.Time

	// LastProviderResponse keeps the most recent raw gateway payload for
	// audit and manual review.
	LastProviderResponse string

	CreatedAt   time.Time
	ProcessedAt *time.Time

	Version int64
}

// Active reports whether this payment still occupies the order's single
// active-payment slot.
func (p *Payment) Active() bool { return !p.Status.Terminal() }
