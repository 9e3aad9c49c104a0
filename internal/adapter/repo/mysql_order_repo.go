package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// execer is satisfied by *sql.DB and *sql.Tx so the same repo code serves
// both standalone calls and units of work.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type MySQLOrderRepo struct{ db execer }

func NewMySQLOrderRepo(db *sql.DB) *MySQLOrderRepo { return &MySQLOrderRepo{db: db} }

// withTx rebinds the repo onto a transaction.
func (r *MySQLOrderRepo) withTx(tx *sql.Tx) *MySQLOrderRepo { return &MySQLOrderRepo{db: tx} }

func (r *MySQLOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO orders
  (id, tenant_id, channel, customer_json, items_json,
   subtotal_cents, delivery_fee_cents, discount_cents, total_cents, currency,
   status, reason, est_prep_min, notes, version, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,NOW(),NOW())
`, o.ID, o.TenantID, o.Channel, customer, items,
		o.Subtotal.Cents, o.DeliveryFee.Cents, o.Discount.Cents, o.Total.Cents, o.Total.Currency,
		o.Status, o.Reason, o.EstimatedPrepMin, o.Notes)
	return err
}

func (r *MySQLOrderRepo) Get(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, channel, customer_json, items_json,
       subtotal_cents, delivery_fee_cents, discount_cents, total_cents, currency,
       status, reason, est_prep_min, notes, version, created_at, updated_at
FROM orders WHERE id=? AND tenant_id=?`, id, tenantID)
	return scanOrder(row)
}

// UpdateStatus persists a guarded transition under the version token:
// WHERE version=? makes the write a compare-and-swap, rows==0 means a
// concurrent writer won.
func (r *MySQLOrderRepo) UpdateStatus(ctx context.Context, o *domain.Order, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE orders
SET status=?, reason=?, est_prep_min=?, notes=?, version=version+1, updated_at=NOW()
WHERE id=? AND tenant_id=? AND version=?`,
		o.Status, o.Reason, o.EstimatedPrepMin, o.Notes,
		o.ID, o.TenantID, version)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var (
		o            domain.Order
		customerJSON []byte
		itemsJSON    []byte
		subtotal     int64
		deliveryFee  int64
		discount     int64
		total        int64
		currency     string
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.Channel, &customerJSON, &itemsJSON,
		&subtotal, &deliveryFee, &discount, &total, &currency,
		&o.Status, &o.Reason, &o.EstimatedPrepMin, &o.Notes, &o.Version,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	o.Subtotal = domain.Money{Cents: subtotal, Currency: currency}
	o.DeliveryFee = domain.Money{Cents: deliveryFee, Currency: currency}
	o.Discount = domain.Money{Cents: discount, Currency: currency}
	o.Total = domain.Money{Cents: total, Currency: currency}
	return &o, nil
}

var _ usecase.OrderRepo = (*MySQLOrderRepo)(nil)
