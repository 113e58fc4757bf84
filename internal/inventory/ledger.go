// Package inventory is the stock ledger: the one shared mutable resource in
// the system. Check-and-decrement for a given product is a single atomic step
// in every implementation, so two checkouts racing for the last units can
// never both succeed.
package inventory

import "context"

type Ledger interface {
	// TryReserve decrements available stock by qty, or fails with
	// orders.ErrProductNotFound / *orders.InsufficientStockError without
	// changing anything.
	TryReserve(ctx context.Context, productID string, qty int) error

	// Release returns qty units to available stock. Exact inverse of
	// TryReserve; used on cancellation and checkout rollback.
	Release(ctx context.Context, productID string, qty int) error
}
