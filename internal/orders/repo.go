package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGRepo is the Postgres order repository.
type PGRepo struct{ DB *pgxpool.Pool }

var _ Repository = (*PGRepo)(nil)

func (r *PGRepo) Insert(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id,
			ship_full_name, ship_line1, ship_line2, ship_city, ship_state,
			ship_postal_code, ship_country, ship_phone,
			subtotal, shipping_fee, discount, final_price,
			payment_status, shipping_status, waybill_number,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`,
		o.ID, o.UserID,
		o.ShippingAddress.FullName, o.ShippingAddress.Line1, o.ShippingAddress.Line2,
		o.ShippingAddress.City, o.ShippingAddress.State, o.ShippingAddress.PostalCode,
		o.ShippingAddress.Country, o.ShippingAddress.PhoneNumber,
		o.Subtotal.String(), o.ShippingFee.String(), o.Discount.String(), o.FinalPrice.String(),
		string(o.PaymentStatus), string(o.ShippingStatus), o.WaybillNumber,
		o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, product_name, unit_price, quantity, packaging)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, it.ProductID, it.ProductName, it.UnitPrice.String(), it.Quantity, it.Packaging)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PGRepo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	var subtotal, fee, discount, final string

	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id,
			ship_full_name, ship_line1, ship_line2, ship_city, ship_state,
			ship_postal_code, ship_country, ship_phone,
			subtotal::text, shipping_fee::text, discount::text, final_price::text,
			payment_status, shipping_status, waybill_number,
			created_at, updated_at, delivered_at
		FROM orders WHERE id=$1`, orderID).Scan(
		&o.ID, &o.UserID,
		&o.ShippingAddress.FullName, &o.ShippingAddress.Line1, &o.ShippingAddress.Line2,
		&o.ShippingAddress.City, &o.ShippingAddress.State, &o.ShippingAddress.PostalCode,
		&o.ShippingAddress.Country, &o.ShippingAddress.PhoneNumber,
		&subtotal, &fee, &discount, &final,
		&o.PaymentStatus, &o.ShippingStatus, &o.WaybillNumber,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, ErrNotFound
		}
		return o, fmt.Errorf("select order: %w", err)
	}

	if o.Subtotal, o.ShippingFee, o.Discount, o.FinalPrice, err = parseAmounts(subtotal, fee, discount, final); err != nil {
		return o, err
	}

	items, err := r.itemsFor(ctx, orderID)
	if err != nil {
		return o, err
	}
	o.Items = items
	return o, nil
}

func (r *PGRepo) itemsFor(ctx context.Context, orderID string) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, product_name, unit_price::text, quantity, packaging
		FROM order_items WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		var price string
		if err := rows.Scan(&it.ProductID, &it.ProductName, &price, &it.Quantity, &it.Packaging); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit_price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id,
			ship_full_name, ship_line1, ship_line2, ship_city, ship_state,
			ship_postal_code, ship_country, ship_phone,
			subtotal::text, shipping_fee::text, discount::text, final_price::text,
			payment_status, shipping_status, waybill_number,
			created_at, updated_at, delivered_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var subtotal, fee, discount, final string
		if err := rows.Scan(
			&o.ID, &o.UserID,
			&o.ShippingAddress.FullName, &o.ShippingAddress.Line1, &o.ShippingAddress.Line2,
			&o.ShippingAddress.City, &o.ShippingAddress.State, &o.ShippingAddress.PostalCode,
			&o.ShippingAddress.Country, &o.ShippingAddress.PhoneNumber,
			&subtotal, &fee, &discount, &final,
			&o.PaymentStatus, &o.ShippingStatus, &o.WaybillNumber,
			&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Subtotal, o.ShippingFee, o.Discount, o.FinalPrice, err = parseAmounts(subtotal, fee, discount, final); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.itemsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *PGRepo) UpdateShippingStatus(ctx context.Context, orderID string, from, to ShippingStatus, deliveredAt *time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET shipping_status=$3, delivered_at=COALESCE($4, delivered_at), updated_at=now()
		WHERE id=$1 AND shipping_status=$2`,
		orderID, string(from), string(to), deliveredAt)
	if err != nil {
		return fmt.Errorf("update shipping status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *PGRepo) UpdatePaymentStatus(ctx context.Context, orderID string, from, to PaymentStatus) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status=$3, updated_at=now()
		WHERE id=$1 AND payment_status=$2`,
		orderID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *PGRepo) AssignWaybill(ctx context.Context, orderID, number string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET waybill_number=$2, updated_at=now()
		WHERE id=$1 AND shipping_status IN ($3,$4)`,
		orderID, number, string(ShippingNotYetShipped), string(ShippingProcessing))
	if err != nil {
		return fmt.Errorf("assign waybill: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

// missOrConflict distinguishes a missing order from a compare-and-swap miss.
func (r *PGRepo) missOrConflict(ctx context.Context, orderID string) error {
	var one int
	err := r.DB.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, orderID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select order: %w", err)
	}
	return ErrInvalidTransition
}

func parseAmounts(subtotal, fee, discount, final string) (s, f, d, fp decimal.Decimal, err error) {
	if s, err = decimal.NewFromString(subtotal); err != nil {
		return s, f, d, fp, fmt.Errorf("parse subtotal: %w", err)
	}
	if f, err = decimal.NewFromString(fee); err != nil {
		return s, f, d, fp, fmt.Errorf("parse shipping_fee: %w", err)
	}
	if d, err = decimal.NewFromString(discount); err != nil {
		return s, f, d, fp, fmt.Errorf("parse discount: %w", err)
	}
	if fp, err = decimal.NewFromString(final); err != nil {
		return s, f, d, fp, fmt.Errorf("parse final_price: %w", err)
	}
	return s, f, d, fp, nil
}
