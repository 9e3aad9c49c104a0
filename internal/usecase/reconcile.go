package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

// ReconcileOutcome tells the webhook handler what happened; every outcome
// except an untrusted payload or a persistence failure is acknowledged 2xx so
// the provider's retry policy stays quiet.
type ReconcileOutcome string

const (
	OutcomeApplied        ReconcileOutcome = "applied"
	OutcomeDuplicate      ReconcileOutcome = "duplicate"
	OutcomeStale          ReconcileOutcome = "stale"
	OutcomeUnknownTx      ReconcileOutcome = "unknown_transaction"
	OutcomeAmountMismatch ReconcileOutcome = "amount_mismatch"
)

// Reconciler turns an untrusted inbound webhook into at most one
// authoritative payment transition. Webhooks arrive at-least-once and
// possibly out of order; the dedupe fast path, the staleness check and the
// version-token CAS together make the net effect order-independent.
type Reconciler struct {
	uow       UnitOfWork
	payments  PaymentRepo
	providers ProviderFactory
	lifecycle *Lifecycle
	dedupe    IdempotencyStore
	audit     WebhookAuditRepo
	notifier  Notifier
	cache     OrderCache
	log       *slog.Logger
}

func NewReconciler(
	uow UnitOfWork,
	payments PaymentRepo,
	providers ProviderFactory,
	lifecycle *Lifecycle,
	dedupe IdempotencyStore,
	audit WebhookAuditRepo,
	notifier Notifier,
	cache OrderCache,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		uow: uow, payments: payments, providers: providers, lifecycle: lifecycle,
		dedupe: dedupe, audit: audit, notifier: notifier, cache: cache, log: log,
	}
}

// Process implements the reconciliation algorithm. The returned error is
// non-nil only for untrusted payloads, amount mismatches and persistence
// conflicts; ambiguity (unknown transaction, duplicate) acknowledges quietly.
func (r *Reconciler) Process(ctx context.Context, tenantID string, provider domain.PaymentProvider, req WebhookRequest) (ReconcileOutcome, error) {
	adapter, err := r.providers.ForProvider(ctx, tenantID, provider)
	if err != nil {
		return "", err
	}

	// Security boundary: nothing below runs on an unauthenticated payload.
	ev, err := adapter.ParseWebhook(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrUntrustedWebhook) {
			r.log.Warn("untrusted webhook rejected", "provider", provider, "tenant_id", tenantID)
		}
		return "", err
	}

	outcome, err := r.apply(ctx, provider, ev)
	r.recordAudit(ctx, provider, ev, req.Body, outcome)
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, provider domain.PaymentProvider, ev *WebhookResult) (ReconcileOutcome, error) {
	// Cheap dedupe: event ids already applied short-circuit before touching
	// the database. Only successful applications are remembered, so a
	// conflicted attempt stays retryable.
	dedupeKey := string(provider) + ":" + ev.EventID
	if ev.EventID != "" {
		if _, seen, _ := r.dedupe.Recall(ctx, "webhook", dedupeKey); seen {
			return OutcomeDuplicate, nil
		}
	}

	payment, err := r.payments.GetByExternalID(ctx, provider, ev.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The provider may retry before our charge-creation response was
			// durably recorded. "Not yet known", not an error.
			r.log.Info("webhook for unknown transaction acknowledged",
				"provider", provider, "external_id", ev.ExternalID)
			return OutcomeUnknownTx, nil
		}
		return "", err
	}

	if payment.Status.StaleFor(ev.Status) {
		return OutcomeStale, nil
	}

	if ev.Status == domain.PaymentPaid {
		if ev.PaidAmount == nil || !ev.PaidAmount.Equal(payment.Amount) {
			return r.failOnMismatch(ctx, payment, ev)
		}
	}

	applied, orderAdvanced, err := r.applyTransition(ctx, payment, ev)
	if err != nil || !applied {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return "", err
		}
		return OutcomeStale, err
	}

	if ev.EventID != "" {
		_ = r.dedupe.Remember(ctx, "webhook", dedupeKey, payment.ID)
	}
	r.emit(ctx, payment, ev.Status, orderAdvanced)
	return OutcomeApplied, nil
}

// applyTransition commits the payment move and, on PAID, the order
// auto-advance in one transaction. One reload-and-retry on a stale version
// token; a second failure surfaces ErrConcurrentModification so the
// provider's retry policy resubmits.
func (r *Reconciler) applyTransition(ctx context.Context, payment *domain.Payment, ev *WebhookResult) (applied, orderAdvanced bool, err error) {
	err = r.uow.Do(ctx, func(orders OrderRepo, payments PaymentRepo) error {
		current := payment
		for attempt := 0; ; attempt++ {
			if current.Status.StaleFor(ev.Status) {
				return nil // another delivery won the race; no-op success
			}
			next, gerr := domain.NextPaymentStatus(current.Status, ev.Status)
			if gerr != nil {
				return gerr
			}

			updated := *current
			updated.Status = next
			updated.LastProviderResponse = ev.RawEcho
			if ev.PaidAt != nil {
				updated.ProcessedAt = ev.PaidAt
			} else {
				now := time.Now().UTC()
				updated.ProcessedAt = &now
			}

			ok, uerr := payments.UpdateStatus(ctx, &updated, current.Version)
			if uerr != nil {
				return uerr
			}
			if ok {
				*payment = updated
				payment.Version = current.Version + 1
				applied = true
				break
			}
			if attempt >= 1 {
				return domain.ErrConcurrentModification
			}
			current, uerr = payments.Get(ctx, payment.TenantID, payment.ID)
			if uerr != nil {
				return uerr
			}
		}

		if payment.Status != domain.PaymentPaid {
			return nil
		}
		order, oerr := orders.Get(ctx, payment.TenantID, payment.OrderID)
		if oerr != nil {
			return oerr
		}
		orderAdvanced, oerr = r.lifecycle.OnPaymentConfirmed(ctx, orders, order)
		return oerr
	})
	return applied, orderAdvanced, err
}

// failOnMismatch records the disagreement and forces the payment to FAILED;
// the money is never silently accepted or corrected.
func (r *Reconciler) failOnMismatch(ctx context.Context, payment *domain.Payment, ev *WebhookResult) (ReconcileOutcome, error) {
	reported := "absent"
	if ev.PaidAmount != nil {
		reported = ev.PaidAmount.Decimal()
	}
	r.log.Error("paid amount mismatch, flagging for manual review",
		"payment_id", payment.ID, "charged", payment.Amount.Decimal(), "reported", reported)

	updated := *payment
	updated.Status = domain.PaymentFailed
	updated.FailureReason = fmt.Sprintf("amount mismatch: charged %s, provider reported %s", payment.Amount.Decimal(), reported)
	updated.LastProviderResponse = ev.RawEcho
	if ok, err := r.payments.UpdateStatus(ctx, &updated, payment.Version); err != nil {
		return "", err
	} else if !ok {
		return "", domain.ErrConcurrentModification
	}
	return OutcomeAmountMismatch, domain.ErrAmountMismatch
}

// emit publishes at most once per genuine state change; failures here never
// affect the committed transition.
func (r *Reconciler) emit(ctx context.Context, payment *domain.Payment, status domain.PaymentStatus, orderAdvanced bool) {
	now := time.Now().UTC()
	if status == domain.PaymentPaid {
		notify(ctx, r.notifier, r.log, OrderEvent{
			TenantID: payment.TenantID, OrderID: payment.OrderID,
			Type: EventPaymentConfirmed, At: now,
		})
	}
	if orderAdvanced {
		notify(ctx, r.notifier, r.log, OrderEvent{
			TenantID: payment.TenantID, OrderID: payment.OrderID,
			Type: EventOrderStatusChanged, NewStatus: string(domain.OrderConfirmed), At: now,
		})
		if r.cache != nil {
			_ = r.cache.SetStatus(ctx, payment.TenantID, payment.OrderID, string(domain.OrderConfirmed))
		}
	}
}

func (r *Reconciler) recordAudit(ctx context.Context, provider domain.PaymentProvider, ev *WebhookResult, body []byte, outcome ReconcileOutcome) {
	if r.audit == nil {
		return
	}
	rec := &WebhookAuditRecord{
		Provider:   provider,
		EventID:    ev.EventID,
		ExternalID: ev.ExternalID,
		Outcome:    string(outcome),
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	}
	if err := r.audit.Insert(ctx, rec); err != nil {
		r.log.Warn("webhook audit insert failed", "provider", provider, "err", err)
	}
}
