package orders

import (
	"context"
	"time"
)

// Repository persists order aggregates. Line items and the address snapshot
// are write-once; only the status fields, waybill and delivered timestamp may
// change after Insert.
//
// The status updates are compare-and-swap on the previous status so that two
// concurrent admin updates cannot both apply.
type Repository interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)

	UpdateShippingStatus(ctx context.Context, orderID string, from, to ShippingStatus, deliveredAt *time.Time) error
	UpdatePaymentStatus(ctx context.Context, orderID string, from, to PaymentStatus) error
	AssignWaybill(ctx context.Context, orderID, number string) error
}
