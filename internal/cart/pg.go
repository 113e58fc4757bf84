package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shoply/orders/internal/orders"
)

type PGStore struct{ DB *pgxpool.Pool }

var _ Store = (*PGStore)(nil)

func (s *PGStore) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	if err := s.productExists(ctx, productID); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()`,
		userID, productID, qty)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (s *PGStore) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE cart_items SET quantity=$3, updated_at=now()
		WHERE user_id=$1 AND product_id=$2`,
		userID, productID, qty)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrCartItemNotFound
	}
	return nil
}

func (s *PGStore) RemoveItem(ctx context.Context, userID, productID string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2`, userID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrCartItemNotFound
	}
	return nil
}

func (s *PGStore) RemoveItems(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id = ANY($2)`, userID, productIDs)
	if err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

func (s *PGStore) ListItems(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.product_id, p.name, p.price::text, ci.quantity, p.packaging, ci.created_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var price string
		if err := rows.Scan(&e.ProductID, &e.ProductName, &price, &e.Quantity, &e.Packaging, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if e.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) productExists(ctx context.Context, productID string) error {
	var one int
	err := s.DB.QueryRow(ctx, `SELECT 1 FROM products WHERE id=$1`, productID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("select product: %w", err)
	}
	return nil
}
