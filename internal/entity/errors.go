package domain

import "errors"

// Core failure taxonomy. Handlers map these to HTTP statuses with errors.Is;
// nothing in this package wraps provider or SQL errors.
var (
	// ErrInvalidTransition is returned by the state-machine guards when the
	// requested target is not reachable from the current state. Never retried
	// automatically.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAmountMismatch means the provider-reported paid amount disagrees with
	// the recorded charge. The payment is forced to Failed and flagged for
	// manual review, never silently corrected.
	ErrAmountMismatch = errors.New("paid amount does not match charge amount")

	// ErrConcurrentModification is an optimistic-concurrency conflict that
	// survived one internal reload-and-retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrActivePaymentExists guards the one-active-payment-per-order rule.
	ErrActivePaymentExists = errors.New("order already has an active payment")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
)

// Provider failure modes (see the charge provider contract).
var (
	// ErrProviderUnavailable is transient; CreateCharge is idempotent per
	// payment id, so callers may safely retry.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrConfigurationInvalid means the tenant's gateway credentials are
	// missing or rejected. Not retryable.
	ErrConfigurationInvalid = errors.New("payment provider configuration invalid")

	// ErrProviderRejected means the gateway refused the charge. Not retryable.
	ErrProviderRejected = errors.New("payment provider rejected the charge")

	// ErrUntrustedWebhook means an inbound webhook failed authenticity
	// validation. Logged as a security event, never applied.
	ErrUntrustedWebhook = errors.New("webhook failed authenticity check")
)
