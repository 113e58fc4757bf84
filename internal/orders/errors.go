package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")

	ErrEmptySelection        = errors.New("no cart items selected")
	ErrQuantityLimitExceeded = errors.New("checkout quantity limit exceeded")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrAddressInvalid        = errors.New("invalid shipping address")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingWaybill    = errors.New("waybill number required before shipping")
)

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
