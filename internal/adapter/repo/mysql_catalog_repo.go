package repo

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// MySQLCatalogRepo is the read-only pricing source for order creation. The
// catalog itself is managed elsewhere; this repo only snapshots prices.
type MySQLCatalogRepo struct{ db *sql.DB }

func NewMySQLCatalogRepo(db *sql.DB) *MySQLCatalogRepo { return &MySQLCatalogRepo{db: db} }

func (r *MySQLCatalogRepo) GetProduct(ctx context.Context, tenantID, productID string) (*usecase.Product, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, price_cents, active
FROM products WHERE id=? AND tenant_id=?`, productID, tenantID)

	var p usecase.Product
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, price_cents FROM product_addons WHERE product_id=?`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.Addons = map[string]usecase.ProductAddon{}
	for rows.Next() {
		var a usecase.ProductAddon
		if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents); err != nil {
			return nil, err
		}
		p.Addons[a.ID] = a
	}
	return &p, rows.Err()
}

var _ usecase.CatalogRepo = (*MySQLCatalogRepo)(nil)
