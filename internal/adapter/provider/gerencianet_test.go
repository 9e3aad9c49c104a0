package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

func gnTestConfig() *usecase.TenantPaymentConfig {
	return &usecase.TenantPaymentConfig{
		TenantID:      "t-1",
		Provider:      domain.ProviderGerencianet,
		ClientID:      "client",
		ClientSecret:  "secret",
		WebhookSecret: "whsec",
		PixKey:        "chave@pix.example",
		Enabled:       true,
	}
}

func newGNServer(t *testing.T, chargeStatus int, chargeBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/cob/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(chargeStatus)
		w.Write([]byte(chargeBody))
	})
	return httptest.NewServer(mux)
}

func TestGerencianetCreateCharge(t *testing.T) {
	body := `{
		"calendario": {"criacao": "2026-08-29T12:00:00Z", "expiracao": 3600},
		"txid": "pay8c3f2b1a9d4e4f0a8b7c6d5e4f3a2b1c",
		"status": "ATIVA",
		"pixCopiaECola": "00020126580014br.gov.bcb.pix...",
		"valor": {"original": "150.00"}
	}`
	srv := newGNServer(t, http.StatusOK, body)
	defer srv.Close()

	gn := NewGerencianet(srv.Client(), srv.URL, gnTestConfig(), slog.Default())
	res, err := gn.CreateCharge(context.Background(), usecase.ChargeRequest{
		PaymentID:      "8c3f2b1a-9d4e-4f0a-8b7c-6d5e4f3a2b1c",
		IdempotencyKey: "pay8c3f2b1a9d4e4f0a8b7c6d5e4f3a2b1c",
		Amount:         domain.BRL(15000),
		Description:    "Pedido #42",
		ExpiresIn:      time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "pay8c3f2b1a9d4e4f0a8b7c6d5e4f3a2b1c", res.ExternalID)
	assert.Contains(t, res.QRCode, "br.gov.bcb.pix")
	assert.Equal(t, int64(15000), res.Amount.Cents)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, 2026, res.ExpiresAt.Year())
}

func TestGerencianetCreateCharge_BadCredentials(t *testing.T) {
	srv := newGNServer(t, http.StatusOK, `{}`)
	defer srv.Close()

	cfg := gnTestConfig()
	cfg.ClientSecret = "wrong"
	gn := NewGerencianet(srv.Client(), srv.URL, cfg, slog.Default())
	_, err := gn.CreateCharge(context.Background(), usecase.ChargeRequest{
		IdempotencyKey: "x", Amount: domain.BRL(100),
	})
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestGerencianetCreateCharge_GatewayErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrProviderRejected},
		{http.StatusUnprocessableEntity, domain.ErrProviderRejected},
		{http.StatusForbidden, domain.ErrConfigurationInvalid},
		{http.StatusInternalServerError, domain.ErrProviderUnavailable},
		{http.StatusServiceUnavailable, domain.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		srv := newGNServer(t, tc.status, `{"nome":"erro"}`)
		gn := NewGerencianet(srv.Client(), srv.URL, gnTestConfig(), slog.Default())
		_, err := gn.CreateCharge(context.Background(), usecase.ChargeRequest{
			IdempotencyKey: "x", Amount: domain.BRL(100),
		})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func signGN(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGerencianetParseWebhook(t *testing.T) {
	gn := NewGerencianet(http.DefaultClient, "http://unused", gnTestConfig(), slog.Default())
	body := []byte(`{"pix":[{"endToEndId":"E12345678202608291200abcdef","txid":"payabc","valor":"50.00","horario":"2026-08-29T12:00:00Z"}]}`)

	res, err := gn.ParseWebhook(context.Background(), usecase.WebhookRequest{
		Body:  body,
		Query: url.Values{"hmac": {signGN(body, "whsec")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "E12345678202608291200abcdef", res.EventID)
	assert.Equal(t, "payabc", res.ExternalID)
	assert.Equal(t, domain.PaymentPaid, res.Status)
	require.NotNil(t, res.PaidAmount)
	assert.Equal(t, int64(5000), res.PaidAmount.Cents)
	require.NotNil(t, res.PaidAt)
}

func TestGerencianetParseWebhook_BadSignature(t *testing.T) {
	gn := NewGerencianet(http.DefaultClient, "http://unused", gnTestConfig(), slog.Default())
	body := []byte(`{"pix":[{"txid":"payabc","valor":"50.00","horario":"2026-08-29T12:00:00Z"}]}`)

	for _, q := range []url.Values{
		{},
		{"hmac": {"deadbeef"}},
		{"hmac": {signGN(body, "other-secret")}},
	} {
		_, err := gn.ParseWebhook(context.Background(), usecase.WebhookRequest{Body: body, Query: q})
		assert.ErrorIs(t, err, domain.ErrUntrustedWebhook)
	}
}

func TestGerencianetParseWebhook_TamperedBody(t *testing.T) {
	gn := NewGerencianet(http.DefaultClient, "http://unused", gnTestConfig(), slog.Default())
	body := []byte(`{"pix":[{"txid":"payabc","valor":"50.00","horario":"2026-08-29T12:00:00Z"}]}`)
	sig := signGN(body, "whsec")
	tampered := []byte(`{"pix":[{"txid":"payabc","valor":"0.01","horario":"2026-08-29T12:00:00Z"}]}`)

	_, err := gn.ParseWebhook(context.Background(), usecase.WebhookRequest{
		Body:  tampered,
		Query: url.Values{"hmac": {sig}},
	})
	assert.ErrorIs(t, err, domain.ErrUntrustedWebhook)
}

func TestParseDecimalCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"50.00", 5000, false},
		{"0.01", 1, false},
		{"150", 15000, false},
		{"9.9", 990, false},
		{"1234.56", 123456, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.234", 0, true},
	}
	for _, tc := range cases {
		got, err := parseDecimalCents(tc.in, "BRL")
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got.Cents, "input %q", tc.in)
	}
}

func TestGerencianetCancelCharge(t *testing.T) {
	var gotMethod, gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/cob/payabc", func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Write([]byte(`{"status":"REMOVIDA_PELO_USUARIO_RECEBEDOR"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gn := NewGerencianet(srv.Client(), srv.URL, gnTestConfig(), slog.Default())
	require.NoError(t, gn.CancelCharge(context.Background(), "payabc"))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/v2/cob/payabc", gotPath)
}

func TestGerencianetTokenCached(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/cob/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"txid":"x","valor":{"original":"1.00"},"calendario":{"criacao":"2026-08-29T12:00:00Z","expiracao":3600}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gn := NewGerencianet(srv.Client(), srv.URL, gnTestConfig(), slog.Default())
	for i := 0; i < 3; i++ {
		_, err := gn.CreateCharge(context.Background(), usecase.ChargeRequest{
			IdempotencyKey: "x", Amount: domain.BRL(100),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}
