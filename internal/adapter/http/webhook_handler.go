package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

const webhookBodyLimit = 256 * 1024

var webhookOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_webhook_outcomes_total",
		Help: "Reconciliation outcomes of inbound payment webhooks",
	},
	[]string{"provider", "outcome"},
)

// WebhookHandler terminates the unauthenticated provider callback routes.
// Signature validation lives in the provider adapters; this layer only
// shapes transport and maps outcomes to status codes the gateways respect.
type WebhookProcessor interface {
	Process(ctx context.Context, tenantID string, provider domain.PaymentProvider, req usecase.WebhookRequest) (usecase.ReconcileOutcome, error)
}

type WebhookHandler struct {
	reconciler WebhookProcessor
}

func NewWebhookHandler(reconciler WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

var providersByPath = map[string]domain.PaymentProvider{
	"gerencianet": domain.ProviderGerencianet,
	"mercadopago": domain.ProviderMercadoPago,
}

// POST /v1/webhooks/:tenant/:provider
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider, ok := providersByPath[strings.ToLower(c.Param("provider"))]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
		return
	}
	tenantID := c.Param("tenant")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	outcome, err := h.reconciler.Process(ctx, tenantID, provider, usecase.WebhookRequest{
		Body:    body,
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
	})
	if outcome != "" {
		webhookOutcomes.WithLabelValues(string(provider), string(outcome)).Inc()
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"outcome": outcome})
	case errors.Is(err, domain.ErrUntrustedWebhook):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "untrusted"})
	case errors.Is(err, domain.ErrAmountMismatch):
		// Acknowledged so the gateway stops retrying; the payment is already
		// flagged FAILED for manual review.
		c.JSON(http.StatusOK, gin.H{"outcome": outcome})
	case errors.Is(err, domain.ErrConfigurationInvalid):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_configured"})
	default:
		// Persistence or conflict failure: 5xx so the provider retries.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
