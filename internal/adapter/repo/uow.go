package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// MySQLUnitOfWork runs a payment transition and its order auto-advance in one
// database transaction, handing the callback tx-bound repos.
type MySQLUnitOfWork struct{ db *sql.DB }

func NewMySQLUnitOfWork(db *sql.DB) *MySQLUnitOfWork { return &MySQLUnitOfWork{db: db} }

func (u *MySQLUnitOfWork) Do(ctx context.Context, fn func(orders usecase.OrderRepo, payments usecase.PaymentRepo) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	orders := (&MySQLOrderRepo{}).withTx(tx)
	payments := (&MySQLPaymentRepo{}).withTx(tx)
	if err := fn(orders, payments); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ usecase.UnitOfWork = (*MySQLUnitOfWork)(nil)
