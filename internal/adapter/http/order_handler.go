package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/http/middleware"
	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

const handlerTimeout = 15 * time.Second

// OrderCreator and OrderLifecycle are the slices of the use case layer this
// handler needs; satisfied by usecase.CreateOrder and usecase.Lifecycle.
type OrderCreator interface {
	Execute(ctx context.Context, in usecase.CreateOrderInput) (usecase.CreateOrderOutput, error)
}

type OrderLifecycle interface {
	GetOrder(ctx context.Context, p usecase.Principal, orderID string) (*domain.Order, error)
	AcceptOrder(ctx context.Context, p usecase.Principal, orderID string, estPrepMin int, notes string) (*domain.Order, error)
	RejectOrder(ctx context.Context, p usecase.Principal, orderID, reason, notes string) (*domain.Order, error)
	AdvanceStatus(ctx context.Context, p usecase.Principal, orderID string, target domain.OrderStatus) (*domain.Order, error)
	CancelOrder(ctx context.Context, p usecase.Principal, orderID, reason string) (*domain.Order, error)
}

type OrderHandler struct {
	create    OrderCreator
	lifecycle OrderLifecycle
}

func NewOrderHandler(create OrderCreator, lifecycle OrderLifecycle) *OrderHandler {
	return &OrderHandler{create: create, lifecycle: lifecycle}
}

type orderItemReq struct {
	ProductID string   `json:"productId" binding:"required"`
	Quantity  int      `json:"quantity" binding:"required,gt=0"`
	Notes     string   `json:"notes"`
	AddonIDs  []string `json:"addonIds"`
}

type createOrderReq struct {
	Channel  string          `json:"channel" binding:"required,oneof=DELIVERY COUNTER TABLE"`
	Customer domain.Customer `json:"customer"`
	Items    []orderItemReq  `json:"items" binding:"required,min=1,dive"`

	DeliveryFeeCents int64 `json:"deliveryFeeCents" binding:"gte=0"`
	DiscountCents    int64 `json:"discountCents" binding:"gte=0"`

	CollectPayment bool `json:"collectPayment"`
}

type paymentResp struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	QRCode    string     `json:"qrCode,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type orderResp struct {
	ID       string             `json:"id"`
	Channel  string             `json:"channel"`
	Status   string             `json:"status"`
	Customer domain.Customer    `json:"customer"`
	Items    []domain.OrderItem `json:"items"`

	SubtotalCents    int64 `json:"subtotalCents"`
	DeliveryFeeCents int64 `json:"deliveryFeeCents"`
	DiscountCents    int64 `json:"discountCents"`
	TotalCents       int64 `json:"totalCents"`

	Reason           string `json:"reason,omitempty"`
	EstimatedPrepMin int    `json:"estimatedPrepMinutes,omitempty"`
	Notes            string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Payment *paymentResp `json:"payment,omitempty"`
}

func toOrderResp(o *domain.Order, pay *domain.Payment) orderResp {
	r := orderResp{
		ID:               o.ID,
		Channel:          string(o.Channel),
		Status:           string(o.Status),
		Customer:         o.Customer,
		Items:            o.Items,
		SubtotalCents:    o.Subtotal.Cents,
		DeliveryFeeCents: o.DeliveryFee.Cents,
		DiscountCents:    o.Discount.Cents,
		TotalCents:       o.Total.Cents,
		Reason:           o.Reason,
		EstimatedPrepMin: o.EstimatedPrepMin,
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if pay != nil {
		r.Payment = &paymentResp{
			ID:        pay.ID,
			Status:    string(pay.Status),
			QRCode:    pay.QRCode,
			ExpiresAt: pay.ExpiresAt,
		}
	}
	return r
}

// POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	items := make([]usecase.CreateOrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, usecase.CreateOrderItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Notes:     it.Notes,
			AddonIDs:  it.AddonIDs,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	out, err := h.create.Execute(ctx, usecase.CreateOrderInput{
		Principal:        middleware.PrincipalFrom(c),
		IdempotencyKey:   c.GetHeader("X-Idempotency-Key"),
		Channel:          domain.Channel(req.Channel),
		Customer:         req.Customer,
		Items:            items,
		DeliveryFeeCents: req.DeliveryFeeCents,
		DiscountCents:    req.DiscountCents,
		CollectPayment:   req.CollectPayment,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toOrderResp(out.Order, out.Payment))
}

// GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	o, err := h.lifecycle.GetOrder(ctx, middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResp(o, nil))
}

type acceptReq struct {
	EstimatedPrepMinutes int    `json:"estimatedPrepMinutes" binding:"gte=0"`
	Notes                string `json:"notes"`
}

// POST /v1/orders/:id/accept
func (h *OrderHandler) AcceptOrder(c *gin.Context) {
	var req acceptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	o, err := h.lifecycle.AcceptOrder(ctx, middleware.PrincipalFrom(c), c.Param("id"), req.EstimatedPrepMinutes, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResp(o, nil))
}

type rejectReq struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes"`
}

// POST /v1/orders/:id/reject
func (h *OrderHandler) RejectOrder(c *gin.Context) {
	var req rejectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	o, err := h.lifecycle.RejectOrder(ctx, middleware.PrincipalFrom(c), c.Param("id"), req.Reason, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResp(o, nil))
}

type advanceReq struct {
	Status string `json:"status" binding:"required"`
}

// PUT /v1/orders/:id/status
func (h *OrderHandler) AdvanceStatus(c *gin.Context) {
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	o, err := h.lifecycle.AdvanceStatus(ctx, middleware.PrincipalFrom(c), c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResp(o, nil))
}

type cancelReq struct {
	Reason string `json:"reason" binding:"required"`
}

// PUT /v1/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	o, err := h.lifecycle.CancelOrder(ctx, middleware.PrincipalFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResp(o, nil))
}

// writeError maps domain sentinels to HTTP statuses. Unknown errors stay
// opaque 500s.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "detail": err.Error()})
	case errors.Is(err, usecase.ErrDuplicate), errors.Is(err, domain.ErrActivePaymentExists):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "detail": err.Error()})
	case errors.Is(err, domain.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent_modification"})
	case errors.Is(err, domain.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
	case errors.Is(err, domain.ErrConfigurationInvalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment_not_configured"})
	case errors.Is(err, domain.ErrProviderRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_rejected"})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider_unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
