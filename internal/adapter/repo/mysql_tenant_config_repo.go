package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// MySQLTenantConfigRepo loads a tenant's gateway configuration; credentials
// feed the provider factory.
type MySQLTenantConfigRepo struct{ db *sql.DB }

func NewMySQLTenantConfigRepo(db *sql.DB) *MySQLTenantConfigRepo {
	return &MySQLTenantConfigRepo{db: db}
}

func (r *MySQLTenantConfigRepo) PaymentConfig(ctx context.Context, tenantID string) (*usecase.TenantPaymentConfig, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT tenant_id, provider, client_id, client_secret, access_token,
       webhook_secret, pix_key, enabled
FROM tenant_payment_configs WHERE tenant_id=?`, tenantID)

	var cfg usecase.TenantPaymentConfig
	err := row.Scan(&cfg.TenantID, &cfg.Provider, &cfg.ClientID, &cfg.ClientSecret,
		&cfg.AccessToken, &cfg.WebhookSecret, &cfg.PixKey, &cfg.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant %s has no payment configuration", domain.ErrConfigurationInvalid, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: payments disabled for tenant %s", domain.ErrConfigurationInvalid, tenantID)
	}
	return &cfg, nil
}

var _ usecase.TenantConfigRepo = (*MySQLTenantConfigRepo)(nil)
