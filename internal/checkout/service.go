// Package checkout turns selected cart items into a placed order while
// keeping the inventory ledger consistent: every line item is reserved before
// the order is persisted, and any failure releases what was already taken.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/shoply/orders/internal/cart"
	"github.com/shoply/orders/internal/inventory"
	kafkax "github.com/shoply/orders/internal/kafka"
	"github.com/shoply/orders/internal/orders"
)

// Publisher is satisfied by kafka.Producer. A nil publisher disables events.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// DiscountResolver is the coupon collaborator boundary. The default grants no
// discount.
type DiscountResolver func(ctx context.Context, userID string, subtotal decimal.Decimal) (decimal.Decimal, error)

type Service struct {
	Carts  cart.Store
	Ledger inventory.Ledger
	Orders orders.Repository
	Events Publisher

	// MaxUnits caps the summed quantity of one checkout.
	MaxUnits    int
	ShippingFee decimal.Decimal
	Discount    DiscountResolver

	ServiceName string
	Log         zerolog.Logger
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// PlaceOrder validates the selection, reserves stock for every line item,
// persists the order and removes the ordered items from the cart. Unselected
// cart items are untouched. On any failure nothing stays reserved.
func (s *Service) PlaceOrder(ctx context.Context, userID string, selectedProductIDs []string, address orders.Address) (orders.Order, error) {
	var zero orders.Order

	if err := address.Validate(); err != nil {
		return zero, err
	}

	items, err := s.Carts.ListItems(ctx, userID)
	if err != nil {
		return zero, fmt.Errorf("list cart: %w", err)
	}

	selected := lo.SliceToMap(selectedProductIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	items = lo.Filter(items, func(e cart.Entry, _ int) bool {
		_, ok := selected[e.ProductID]
		return ok
	})
	if len(items) == 0 {
		return zero, orders.ErrEmptySelection
	}

	units := lo.SumBy(items, func(e cart.Entry) int { return e.Quantity })
	if s.MaxUnits > 0 && units > s.MaxUnits {
		return zero, fmt.Errorf("%w: %d units selected, limit %d", orders.ErrQuantityLimitExceeded, units, s.MaxUnits)
	}

	// Reserve every line; roll back the lines already taken on the first
	// failure so no partial reservation is ever left standing.
	reserved := make([]cart.Entry, 0, len(items))
	for _, it := range items {
		if err := s.Ledger.TryReserve(ctx, it.ProductID, it.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			return zero, err
		}
		reserved = append(reserved, it)
	}

	lineItems := lo.Map(items, func(e cart.Entry, _ int) orders.LineItem {
		return orders.LineItem{
			ProductID:   e.ProductID,
			ProductName: e.ProductName,
			UnitPrice:   e.UnitPrice,
			Quantity:    e.Quantity,
			Packaging:   e.Packaging,
		}
	})

	subtotal := decimal.Zero
	for _, it := range lineItems {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	discount := decimal.Zero
	if s.Discount != nil {
		if discount, err = s.Discount(ctx, userID, subtotal); err != nil {
			s.releaseAll(ctx, reserved)
			return zero, fmt.Errorf("resolve discount: %w", err)
		}
	}

	now := s.now()
	order := orders.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           lineItems,
		ShippingAddress: address,
		Subtotal:        subtotal,
		ShippingFee:     s.ShippingFee,
		Discount:        discount,
		FinalPrice:      subtotal.Add(s.ShippingFee).Sub(discount),
		PaymentStatus:   orders.PaymentPending,
		ShippingStatus:  orders.ShippingNotYetShipped,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Persistence is the commit point. If it fails the reservation must not
	// outlive this call.
	if err := s.Orders.Insert(ctx, order); err != nil {
		s.releaseAll(ctx, reserved)
		return zero, fmt.Errorf("persist order: %w", err)
	}

	if err := s.Carts.RemoveItems(ctx, userID, selectedProductIDs); err != nil {
		// The order is already placed; a stale cart row is recoverable.
		s.Log.Warn().Err(err).Str("order_id", order.ID).Msg("cart cleanup failed")
	}

	s.publishPlaced(order)
	return order, nil
}

func (s *Service) releaseAll(ctx context.Context, reserved []cart.Entry) {
	// The request context may already be cancelled (client disconnect, server
	// timeout) when compensation runs; the release must still reach the ledger
	// or the decrement stands forever.
	ctx = context.WithoutCancel(ctx)
	for _, it := range reserved {
		if err := s.Ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
			s.Log.Error().Err(err).Str("product_id", it.ProductID).Int("qty", it.Quantity).
				Msg("reservation rollback failed")
		}
	}
}

func (s *Service) publishPlaced(o orders.Order) {
	if s.Events == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID: o.ID,
			UserID:  o.UserID,
			Items: lo.Map(o.Items, func(it orders.LineItem, _ int) orders.ItemQty {
				return orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity}
			}),
			FinalPrice: o.FinalPrice.String(),
		}),
	}
	s.Events.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
