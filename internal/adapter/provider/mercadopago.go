package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// MercadoPago PIX adapter. Charge creation uses the payments API with the
// X-Idempotency-Key header; webhook notifications are thin (id only), so
// after validating the x-signature header the adapter fetches the payment to
// learn its actual status and amount.
type MercadoPago struct {
	httpc   *http.Client
	baseURL string
	cfg     *usecase.TenantPaymentConfig
	log     *slog.Logger
}

func NewMercadoPago(httpc *http.Client, baseURL string, cfg *usecase.TenantPaymentConfig, log *slog.Logger) *MercadoPago {
	return &MercadoPago{httpc: httpc, baseURL: strings.TrimRight(baseURL, "/"), cfg: cfg, log: log}
}

type mpPayment struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	TransactionAmount  float64 `json:"transaction_amount"`
	DateApproved       string  `json:"date_approved"`
	DateOfExpiration   string  `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (m *MercadoPago) CreateCharge(ctx context.Context, req usecase.ChargeRequest) (*usecase.ChargeResult, error) {
	if m.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing mercadopago access token", domain.ErrConfigurationInvalid)
	}

	body := map[string]any{
		"transaction_amount": float64(req.Amount.Cents) / 100,
		"description":        req.Description,
		"payment_method_id":  "pix",
		"payer": map[string]any{
			"email":      req.CustomerEmail,
			"first_name": req.CustomerName,
		},
	}
	if req.ExpiresIn > 0 {
		body["date_of_expiration"] = time.Now().Add(req.ExpiresIn).UTC().Format("2006-01-02T15:04:05.000-07:00")
	}
	payload, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)

	resp, err := m.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if err := mpStatusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var pay mpPayment
	if err := json.Unmarshal(raw, &pay); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	res := &usecase.ChargeResult{
		ExternalID: fmt.Sprintf("%d", pay.ID),
		QRCode:     pay.PointOfInteraction.TransactionData.QRCode,
		Amount:     mpCents(pay.TransactionAmount, req.Amount.Currency),
		RawEcho:    string(raw),
	}
	if pay.DateOfExpiration != "" {
		if exp, err := time.Parse("2006-01-02T15:04:05.000-07:00", pay.DateOfExpiration); err == nil {
			res.ExpiresAt = &exp
		}
	}
	return res, nil
}

type mpNotification struct {
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ParseWebhook validates the x-signature header (ts/v1 pair, HMAC-SHA256
// over the documented manifest) and then fetches the payment, because the
// notification body carries only the payment id.
func (m *MercadoPago) ParseWebhook(ctx context.Context, req usecase.WebhookRequest) (*usecase.WebhookResult, error) {
	var note mpNotification
	if err := json.Unmarshal(req.Body, &note); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	dataID := note.Data.ID.String()
	if dataID == "" || dataID == "null" {
		dataID = req.Query.Get("data.id")
	}
	if dataID == "" {
		return nil, fmt.Errorf("notification carries no payment id")
	}

	requestID := req.Headers.Get("x-request-id")
	if !m.validSignature(req.Headers.Get("x-signature"), dataID, requestID) {
		return nil, domain.ErrUntrustedWebhook
	}

	pay, raw, err := m.fetchPayment(ctx, dataID)
	if err != nil {
		return nil, err
	}

	status, ok := mpStatusMap[pay.Status]
	if !ok {
		return nil, fmt.Errorf("unknown payment status %q", pay.Status)
	}

	eventID := requestID
	if eventID == "" {
		eventID = fmt.Sprintf("%s@%s", dataID, pay.Status)
	}

	res := &usecase.WebhookResult{
		EventID:    eventID,
		ExternalID: dataID,
		Status:     status,
		RawEcho:    string(raw),
	}
	if status == domain.PaymentPaid {
		amount := mpCents(pay.TransactionAmount, "BRL")
		res.PaidAmount = &amount
		if pay.DateApproved != "" {
			if at, err := time.Parse("2006-01-02T15:04:05.000-07:00", pay.DateApproved); err == nil {
				res.PaidAt = &at
			}
		}
		if res.PaidAt == nil {
			now := time.Now().UTC()
			res.PaidAt = &now
		}
	}
	return res, nil
}

var mpStatusMap = map[string]domain.PaymentStatus{
	"approved":     domain.PaymentPaid,
	"authorized":   domain.PaymentAuthorized,
	"pending":      domain.PaymentPending,
	"in_process":   domain.PaymentPending,
	"cancelled":    domain.PaymentCancelled,
	"rejected":     domain.PaymentFailed,
	"refunded":     domain.PaymentRefunded,
	"charged_back": domain.PaymentRefunded,
}

func (m *MercadoPago) CancelCharge(ctx context.Context, externalID string) error {
	body := []byte(`{"status":"cancelled"}`)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, m.baseURL+"/v1/payments/"+externalID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return mpStatusError(resp.StatusCode, raw)
}

func (m *MercadoPago) RefundCharge(ctx context.Context, externalID string, amount domain.Money) error {
	body, _ := json.Marshal(map[string]any{"amount": float64(amount.Cents) / 100})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/payments/"+externalID+"/refunds", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", "refund-"+externalID)

	resp, err := m.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return mpStatusError(resp.StatusCode, raw)
}

func (m *MercadoPago) fetchPayment(ctx context.Context, id string) (*mpPayment, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)

	resp, err := m.httpc.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if err := mpStatusError(resp.StatusCode, raw); err != nil {
		return nil, nil, err
	}

	var pay mpPayment
	if err := json.Unmarshal(raw, &pay); err != nil {
		return nil, nil, fmt.Errorf("decode payment: %w", err)
	}
	return &pay, raw, nil
}

// validSignature checks the x-signature header, formatted as
// "ts=<unix>,v1=<hex hmac>", against the documented manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (m *MercadoPago) validSignature(header, dataID, requestID string) bool {
	if header == "" || m.cfg.WebhookSecret == "" {
		return false
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(m.cfg.WebhookSecret))
	mac.Write([]byte(manifest))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(v1)))
}

func mpStatusError(status int, raw []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: gateway returned %d", domain.ErrConfigurationInvalid, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: gateway returned %d: %s", domain.ErrProviderRejected, status, truncate(raw, 256))
	default:
		return fmt.Errorf("%w: gateway returned %d", domain.ErrProviderUnavailable, status)
	}
}

// mpCents converts the gateway's float amount to cents. The round guards
// against binary float noise on values that are exact in decimal.
func mpCents(v float64, currency string) domain.Money {
	return domain.Money{Cents: int64(math.Round(v * 100)), Currency: currency}
}

var _ usecase.ChargeProvider = (*MercadoPago)(nil)
