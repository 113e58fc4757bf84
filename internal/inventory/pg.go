package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoply/orders/internal/orders"
)

// PGLedger reserves stock with a conditional UPDATE, letting Postgres
// serialize concurrent reservations on the same row.
type PGLedger struct{ DB *pgxpool.Pool }

var _ Ledger = (*PGLedger)(nil)

func (l *PGLedger) TryReserve(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	ct, err := l.DB.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = l.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("select stock: %w", err)
	}
	return &orders.InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

func (l *PGLedger) Release(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	ct, err := l.DB.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, version = version + 1, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}
