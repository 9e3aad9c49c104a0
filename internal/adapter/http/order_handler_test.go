package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/configs"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/adapter/http/middleware"
	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCreator struct {
	in  usecase.CreateOrderInput
	out usecase.CreateOrderOutput
	err error
}

func (f *fakeCreator) Execute(ctx context.Context, in usecase.CreateOrderInput) (usecase.CreateOrderOutput, error) {
	f.in = in
	return f.out, f.err
}

type fakeLifecycle struct {
	order *domain.Order
	err   error

	lastOp     string
	lastTarget domain.OrderStatus
	lastReason string
	principal  usecase.Principal
}

func (f *fakeLifecycle) GetOrder(ctx context.Context, p usecase.Principal, orderID string) (*domain.Order, error) {
	f.lastOp, f.principal = "get", p
	return f.order, f.err
}

func (f *fakeLifecycle) AcceptOrder(ctx context.Context, p usecase.Principal, orderID string, est int, notes string) (*domain.Order, error) {
	f.lastOp, f.principal = "accept", p
	return f.order, f.err
}

func (f *fakeLifecycle) RejectOrder(ctx context.Context, p usecase.Principal, orderID, reason, notes string) (*domain.Order, error) {
	f.lastOp, f.lastReason, f.principal = "reject", reason, p
	return f.order, f.err
}

func (f *fakeLifecycle) AdvanceStatus(ctx context.Context, p usecase.Principal, orderID string, target domain.OrderStatus) (*domain.Order, error) {
	f.lastOp, f.lastTarget, f.principal = "advance", target, p
	return f.order, f.err
}

func (f *fakeLifecycle) CancelOrder(ctx context.Context, p usecase.Principal, orderID, reason string) (*domain.Order, error) {
	f.lastOp, f.lastReason, f.principal = "cancel", reason, p
	return f.order, f.err
}

func testConfig() configs.Config {
	var cfg configs.Config
	cfg.Security.JWTSecret = "test-secret"
	cfg.Security.Issuer = "opamenu"
	cfg.Security.Audience = "order-api"
	cfg.Security.TTL = time.Hour
	return cfg
}

func issueTestToken(t *testing.T, cfg configs.Config, tenant string, perms []string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":    cfg.Security.Issuer,
		"aud":    cfg.Security.Audience,
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
		"sub":    "staff-1",
		"tenant": tenant,
		"perms":  perms,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Security.JWTSecret))
	require.NoError(t, err)
	return signed
}

func testRouter(creator OrderCreator, lc OrderLifecycle, wp WebhookProcessor, cfg configs.Config) *gin.Engine {
	h := NewOrderHandler(creator, lc)
	wh := NewWebhookHandler(wp)
	th := NewTokenHandler(cfg)
	return NewRouter(h, wh, th, middleware.NewAuthz(cfg), slog.Default())
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:       "o-1",
		TenantID: "t-1",
		Channel:  domain.ChannelDelivery,
		Status:   domain.OrderPending,
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Pizza Margherita", Quantity: 2, UnitPriceCents: 6900},
		},
		Subtotal:    domain.BRL(13800),
		DeliveryFee: domain.BRL(1000),
		Total:       domain.BRL(14800),
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	cfg := testConfig()
	creator := &fakeCreator{out: usecase.CreateOrderOutput{
		Order: sampleOrder(),
		Payment: &domain.Payment{
			ID: "pay-1", Status: domain.PaymentPending, QRCode: "00020126...",
		},
	}}
	r := testRouter(creator, &fakeLifecycle{}, nil, cfg)

	body := `{
		"channel": "DELIVERY",
		"customer": {"name": "Ana", "phone": "+5511999990000"},
		"items": [{"productId": "p-1", "quantity": 2}],
		"deliveryFeeCents": 1000,
		"collectPayment": true
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, cfg, "t-1", []string{"orders.write"}))
	req.Header.Set("X-Idempotency-Key", "idem-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "t-1", creator.in.Principal.TenantID)
	assert.Equal(t, "idem-1", creator.in.IdempotencyKey)
	assert.True(t, creator.in.CollectPayment)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "o-1", resp["id"])
	assert.Equal(t, float64(14800), resp["totalCents"])
	pay, ok := resp["payment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "00020126...", pay["qrCode"])
}

func TestCreateOrder_RejectsBadChannel(t *testing.T) {
	cfg := testConfig()
	r := testRouter(&fakeCreator{}, &fakeLifecycle{}, nil, cfg)

	body := `{"channel": "DRONE", "items": [{"productId": "p-1", "quantity": 1}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, cfg, "t-1", []string{"orders.write"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderRoutes_RequireToken(t *testing.T) {
	cfg := testConfig()
	r := testRouter(&fakeCreator{}, &fakeLifecycle{order: sampleOrder()}, nil, cfg)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/v1/orders"},
		{http.MethodGet, "/v1/orders/o-1"},
		{http.MethodPost, "/v1/orders/o-1/accept"},
		{http.MethodPut, "/v1/orders/o-1/cancel"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestStaffRoutes_NeedManagePerm(t *testing.T) {
	cfg := testConfig()
	r := testRouter(&fakeCreator{}, &fakeLifecycle{order: sampleOrder()}, nil, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders/o-1/accept",
		strings.NewReader(`{"estimatedPrepMinutes": 20}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, cfg, "t-1", []string{"orders.write"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAcceptOrderEndpoint(t *testing.T) {
	cfg := testConfig()
	lc := &fakeLifecycle{order: sampleOrder()}
	r := testRouter(&fakeCreator{}, lc, nil, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders/o-1/accept",
		strings.NewReader(`{"estimatedPrepMinutes": 25, "notes": "sem cebola"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, cfg, "t-1", []string{"orders.manage"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accept", lc.lastOp)
	assert.Equal(t, "t-1", lc.principal.TenantID)
}

func TestErrorMapping(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrConcurrentModification, http.StatusConflict},
		{domain.ErrConfigurationInvalid, http.StatusUnprocessableEntity},
		{domain.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{domain.ErrProviderRejected, http.StatusBadGateway},
	}
	for _, tc := range cases {
		lc := &fakeLifecycle{err: tc.err}
		r := testRouter(&fakeCreator{}, lc, nil, cfg)

		req := httptest.NewRequest(http.MethodPut, "/v1/orders/o-1/status",
			strings.NewReader(`{"status": "READY"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+issueTestToken(t, cfg, "t-1", []string{"orders.manage"}))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)
	}
}

func TestTokenEndpoint(t *testing.T) {
	cfg := testConfig()
	r := testRouter(&fakeCreator{}, &fakeLifecycle{}, nil, cfg)

	form := url.Values{"client_id": {"dashboard-demo"}, "client_secret": {"dashboard-demo-secret"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/token", bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)

	// The issued token must pass the authz middleware.
	lc := &fakeLifecycle{order: sampleOrder()}
	r2 := testRouter(&fakeCreator{}, lc, nil, cfg)
	req2 := httptest.NewRequest(http.MethodGet, "/v1/orders/o-1", nil)
	req2.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w2 := httptest.NewRecorder()
	r2.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "tenant-demo", lc.principal.TenantID)
}

func TestTokenEndpoint_BadSecret(t *testing.T) {
	cfg := testConfig()
	r := testRouter(&fakeCreator{}, &fakeLifecycle{}, nil, cfg)

	form := url.Values{"client_id": {"dashboard-demo"}, "client_secret": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/token", bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
