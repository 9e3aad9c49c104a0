package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// Factory resolves the gateway adapter for a tenant's configured provider.
// Adapters are built per call from the tenant's credentials; they hold no
// cross-tenant state.
type Factory struct {
	cfgs  usecase.TenantConfigRepo
	httpc *http.Client
	log   *slog.Logger

	gerencianetBaseURL string
	mercadoPagoBaseURL string
}

func NewFactory(cfgs usecase.TenantConfigRepo, timeout time.Duration, gnBaseURL, mpBaseURL string, log *slog.Logger) *Factory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if gnBaseURL == "" {
		gnBaseURL = "https://pix.api.efipay.com.br"
	}
	if mpBaseURL == "" {
		mpBaseURL = "https://api.mercadopago.com"
	}
	return &Factory{
		cfgs:               cfgs,
		httpc:              &http.Client{Timeout: timeout},
		log:                log,
		gerencianetBaseURL: gnBaseURL,
		mercadoPagoBaseURL: mpBaseURL,
	}
}

func (f *Factory) ForTenant(ctx context.Context, tenantID string) (usecase.ChargeProvider, domain.PaymentProvider, error) {
	cfg, err := f.cfgs.PaymentConfig(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	p, err := f.build(cfg)
	if err != nil {
		return nil, "", err
	}
	return p, cfg.Provider, nil
}

// ForProvider serves the webhook route: the path names the provider, and it
// must match what the tenant actually configured.
func (f *Factory) ForProvider(ctx context.Context, tenantID string, provider domain.PaymentProvider) (usecase.ChargeProvider, error) {
	cfg, err := f.cfgs.PaymentConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg.Provider != provider {
		return nil, fmt.Errorf("%w: tenant %s is configured for %s, not %s",
			domain.ErrConfigurationInvalid, tenantID, cfg.Provider, provider)
	}
	return f.build(cfg)
}

func (f *Factory) build(cfg *usecase.TenantPaymentConfig) (usecase.ChargeProvider, error) {
	switch cfg.Provider {
	case domain.ProviderGerencianet:
		return NewGerencianet(f.httpc, f.gerencianetBaseURL, cfg, f.log), nil
	case domain.ProviderMercadoPago:
		return NewMercadoPago(f.httpc, f.mercadoPagoBaseURL, cfg, f.log), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrConfigurationInvalid, cfg.Provider)
	}
}

var _ usecase.ProviderFactory = (*Factory)(nil)
