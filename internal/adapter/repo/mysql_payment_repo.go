package repo

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// terminalPaymentStatuses is inlined into NOT IN clauses for the
// active-payment lookup.
const terminalPaymentStatuses = `'PAID','EXPIRED','FAILED','REFUNDED','CANCELLED'`

type MySQLPaymentRepo struct{ db execer }

func NewMySQLPaymentRepo(db *sql.DB) *MySQLPaymentRepo { return &MySQLPaymentRepo{db: db} }

func (r *MySQLPaymentRepo) withTx(tx *sql.Tx) *MySQLPaymentRepo { return &MySQLPaymentRepo{db: tx} }

const paymentColumns = `
id, tenant_id, order_id, amount_cents, currency, method, provider,
external_id, status, failure_reason, qr_code, expires_at,
last_provider_response, version, created_at, processed_at`

// Create enforces the one-active-payment-per-order rule with a conditional
// insert: the row lands only when no non-terminal sibling exists.
func (r *MySQLPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO payments
  (id, tenant_id, order_id, amount_cents, currency, method, provider,
   external_id, status, failure_reason, qr_code, expires_at,
   last_provider_response, version, created_at, processed_at)
SELECT ?,?,?,?,?,?,?,?,?,?,?,?,?,0,NOW(),NULL
FROM dual
WHERE NOT EXISTS (
  SELECT 1 FROM payments
  WHERE order_id=? AND tenant_id=? AND status NOT IN (`+terminalPaymentStatuses+`)
)`,
		p.ID, p.TenantID, p.OrderID, p.Amount.Cents, p.Amount.Currency, p.Method, p.Provider,
		p.ExternalID, p.Status, p.FailureReason, p.QRCode, p.ExpiresAt,
		p.LastProviderResponse,
		p.OrderID, p.TenantID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrActivePaymentExists
	}
	return nil
}

func (r *MySQLPaymentRepo) Get(ctx context.Context, tenantID, id string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanPayment(row)
}

func (r *MySQLPaymentRepo) GetByExternalID(ctx context.Context, provider domain.PaymentProvider, externalID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE provider=? AND external_id=?`, provider, externalID)
	return scanPayment(row)
}

func (r *MySQLPaymentRepo) ActiveByOrder(ctx context.Context, tenantID, orderID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE order_id=? AND tenant_id=? AND status NOT IN (`+terminalPaymentStatuses+`)
ORDER BY created_at DESC LIMIT 1`, orderID, tenantID)
	p, err := scanPayment(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *MySQLPaymentRepo) GetPaidByOrder(ctx context.Context, tenantID, orderID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+paymentColumns+` FROM payments
WHERE order_id=? AND tenant_id=? AND status='PAID'
ORDER BY created_at DESC LIMIT 1`, orderID, tenantID)
	p, err := scanPayment(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// SetCharge records the gateway's charge-creation response. Amount and order
// binding are immutable; only charge material moves.
func (r *MySQLPaymentRepo) SetCharge(ctx context.Context, p *domain.Payment, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE payments
SET external_id=?, qr_code=?, expires_at=?, last_provider_response=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		p.ExternalID, p.QRCode, p.ExpiresAt, p.LastProviderResponse,
		p.ID, p.TenantID, version)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *MySQLPaymentRepo) UpdateStatus(ctx context.Context, p *domain.Payment, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE payments
SET status=?, failure_reason=?, last_provider_response=?, processed_at=?, version=version+1
WHERE id=? AND tenant_id=? AND version=?`,
		p.Status, p.FailureReason, p.LastProviderResponse, p.ProcessedAt,
		p.ID, p.TenantID, version)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func scanPayment(row *sql.Row) (*domain.Payment, error) {
	var (
		p          domain.Payment
		amount     int64
		currency   string
		externalID sql.NullString
		expiresAt  sql.NullTime
		processed  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.OrderID, &amount, &currency, &p.Method, &p.Provider,
		&externalID, &p.Status, &p.FailureReason, &p.QRCode, &expiresAt,
		&p.LastProviderResponse, &p.Version, &p.CreatedAt, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Amount = domain.Money{Cents: amount, Currency: currency}
	p.ExternalID = externalID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if processed.Valid {
		t := processed.Time
		p.ProcessedAt = &t
	}
	return &p, nil
}

var _ usecase.PaymentRepo = (*MySQLPaymentRepo)(nil)
