// Package cart is the staging area before checkout. No stock check happens
// here; stock is authoritative only at checkout time.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is a cart row with the product's live name and price resolved at read
// time. Only the eventual order snapshots the price.
type Entry struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Packaging   string          `json:"packaging,omitempty"`
	AddedAt     time.Time       `json:"added_at"`
}

type Store interface {
	// AddItem inserts a new row or increments an existing one.
	AddItem(ctx context.Context, userID, productID string, qty int) error

	// SetQuantity overwrites the quantity of an existing row. Quantities
	// below 1 are rejected; callers remove the item instead.
	SetQuantity(ctx context.Context, userID, productID string, qty int) error

	RemoveItem(ctx context.Context, userID, productID string) error

	// RemoveItems deletes the given products from the user's cart, leaving
	// everything else untouched. Used after a successful checkout.
	RemoveItems(ctx context.Context, userID string, productIDs []string) error

	// ListItems returns the user's cart in insertion order.
	ListItems(ctx context.Context, userID string) ([]Entry, error)
}
