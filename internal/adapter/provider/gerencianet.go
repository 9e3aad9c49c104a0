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
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// Gerencianet (Efí) PIX adapter. Charges go through the cob API keyed by a
// caller-supplied txid, which makes charge creation idempotent: re-PUTting
// the same txid returns the existing charge instead of opening a new one.
// Webhooks carry the settled pix entries and are authenticated with an HMAC
// the gateway appends as a query parameter.
type Gerencianet struct {
	httpc   *http.Client
	baseURL string
	cfg     *usecase.TenantPaymentConfig
	log     *slog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewGerencianet(httpc *http.Client, baseURL string, cfg *usecase.TenantPaymentConfig, log *slog.Logger) *Gerencianet {
	return &Gerencianet{httpc: httpc, baseURL: strings.TrimRight(baseURL, "/"), cfg: cfg, log: log}
}

type gnCharge struct {
	Calendario struct {
		Criacao   time.Time `json:"criacao"`
		Expiracao int       `json:"expiracao"`
	} `json:"calendario"`
	Txid          string `json:"txid"`
	Status        string `json:"status"`
	PixCopiaECola string `json:"pixCopiaECola"`
	Valor         struct {
		Original string `json:"original"`
	} `json:"valor"`
}

func (g *Gerencianet) CreateCharge(ctx context.Context, req usecase.ChargeRequest) (*usecase.ChargeResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	expiracao := int(req.ExpiresIn.Seconds())
	if expiracao <= 0 {
		expiracao = 3600
	}
	body := map[string]any{
		"calendario":         map[string]any{"expiracao": expiracao},
		"valor":              map[string]any{"original": req.Amount.Decimal()},
		"chave":              g.cfg.PixKey,
		"solicitacaoPagador": req.Description,
	}
	if req.CustomerName != "" {
		body["devedor"] = map[string]any{"nome": req.CustomerName}
	}
	payload, _ := json.Marshal(body)

	// txid doubles as the idempotency key.
	url := fmt.Sprintf("%s/v2/cob/%s", g.baseURL, req.IdempotencyKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if err := gnStatusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var charge gnCharge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	expiresAt := charge.Calendario.Criacao.Add(time.Duration(charge.Calendario.Expiracao) * time.Second)
	amount, err := parseDecimalCents(charge.Valor.Original, req.Amount.Currency)
	if err != nil {
		return nil, fmt.Errorf("charge amount %q: %w", charge.Valor.Original, err)
	}

	return &usecase.ChargeResult{
		ExternalID: charge.Txid,
		QRCode:     charge.PixCopiaECola,
		ExpiresAt:  &expiresAt,
		Amount:     amount,
		RawEcho:    string(raw),
	}, nil
}

type gnWebhook struct {
	Pix []struct {
		EndToEndID string `json:"endToEndId"`
		Txid       string `json:"txid"`
		Valor      string `json:"valor"`
		Horario    time.Time `json:"horario"`
	} `json:"pix"`
}

// ParseWebhook authenticates with HMAC-SHA256 of the raw body against the
// tenant's webhook secret (the gateway echoes it back as the hmac query
// parameter) before anything is parsed.
func (g *Gerencianet) ParseWebhook(ctx context.Context, req usecase.WebhookRequest) (*usecase.WebhookResult, error) {
	got := req.Query.Get("hmac")
	if got == "" || !validHMAC(req.Body, g.cfg.WebhookSecret, got) {
		return nil, domain.ErrUntrustedWebhook
	}

	var wh gnWebhook
	if err := json.Unmarshal(req.Body, &wh); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if len(wh.Pix) == 0 {
		return nil, fmt.Errorf("webhook carries no pix entries")
	}

	// One notification carries the settlement of a single charge.
	pix := wh.Pix[0]
	amount, err := parseDecimalCents(pix.Valor, "BRL")
	if err != nil {
		return nil, fmt.Errorf("webhook amount %q: %w", pix.Valor, err)
	}
	paidAt := pix.Horario

	eventID := pix.EndToEndID
	if eventID == "" {
		eventID = pix.Txid + "@" + paidAt.UTC().Format(time.RFC3339)
	}

	return &usecase.WebhookResult{
		EventID:    eventID,
		ExternalID: pix.Txid,
		Status:     domain.PaymentPaid,
		PaidAmount: &amount,
		PaidAt:     &paidAt,
		RawEcho:    string(req.Body),
	}, nil
}

func (g *Gerencianet) CancelCharge(ctx context.Context, externalID string) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}
	body := []byte(`{"status":"REMOVIDA_PELO_USUARIO_RECEBEDOR"}`)
	url := fmt.Sprintf("%s/v2/cob/%s", g.baseURL, externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return gnStatusError(resp.StatusCode, raw)
}

func (g *Gerencianet) RefundCharge(ctx context.Context, externalID string, amount domain.Money) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]any{"valor": amount.Decimal()})
	url := fmt.Sprintf("%s/v2/cob/%s/devolucao", g.baseURL, externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return gnStatusError(resp.StatusCode, raw)
}

// accessToken does the client-credentials dance and caches the token until
// shortly before expiry.
func (g *Gerencianet) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExp) {
		return g.token, nil
	}
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" {
		return "", fmt.Errorf("%w: missing gerencianet credentials", domain.ErrConfigurationInvalid)
	}

	body := []byte(`{"grant_type":"client_credentials"}`)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: credentials rejected", domain.ErrConfigurationInvalid)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	g.token = tok.AccessToken
	g.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return g.token, nil
}

func gnStatusError(status int, raw []byte) error {
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

func validHMAC(body []byte, secret, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(got)))
}

// parseDecimalCents converts gateway decimal strings ("50.00") to exact
// cents. Anything that doesn't fit two fractional digits is rejected rather
// than rounded.
func parseDecimalCents(s, currency string) (domain.Money, error) {
	whole, frac, found := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" {
		return domain.Money{}, fmt.Errorf("empty amount")
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return domain.Money{}, err
	}
	var cents int64
	if found {
		if len(frac) > 2 {
			return domain.Money{}, fmt.Errorf("more than two fractional digits")
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return domain.Money{}, err
		}
		cents = f
	}
	total := w*100 + cents
	if strings.HasPrefix(whole, "-") {
		total = w*100 - cents
	}
	return domain.Money{Cents: total, Currency: currency}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ usecase.ChargeProvider = (*Gerencianet)(nil)
