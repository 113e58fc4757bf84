// Package fulfillment governs the order-status state machine after checkout.
// Shipping and payment progress independently; cancellation is the only
// transition that touches the inventory ledger.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shoply/orders/internal/inventory"
	kafkax "github.com/shoply/orders/internal/kafka"
	"github.com/shoply/orders/internal/orders"
)

// Publisher is satisfied by kafka.Producer. A nil publisher disables events.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Orders orders.Repository
	Ledger inventory.Ledger

	// Events carries order.status.changed, Cancels carries order.cancelled;
	// producers are bound to one topic each.
	Events  Publisher
	Cancels Publisher

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

// UpdateShippingStatus applies one admin-initiated transition. Shipping
// requires an assigned waybill; delivery stamps the delivery time;
// cancellation releases every reserved line item back to the ledger.
func (s *Service) UpdateShippingStatus(ctx context.Context, orderID string, next orders.ShippingStatus) (orders.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}

	from := o.ShippingStatus
	if !orders.CanTransitionShipping(from, next) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, from, next)
	}
	if next == orders.ShippingShipped && o.WaybillNumber == "" {
		return orders.Order{}, orders.ErrMissingWaybill
	}

	var deliveredAt *time.Time
	if next == orders.ShippingDelivered {
		t := s.now()
		deliveredAt = &t
	}

	// The compare-and-swap guards against a concurrent admin update; only
	// one caller wins the transition, so the cancellation release below
	// runs exactly once.
	if err := s.Orders.UpdateShippingStatus(ctx, orderID, from, next, deliveredAt); err != nil {
		return orders.Order{}, err
	}

	if next == orders.ShippingCancelled {
		s.releaseReservation(ctx, o)
		s.publishCancelled(o)
	}
	s.publishStatusChanged(orderID, "shipping", string(from), string(next))

	return s.Orders.Get(ctx, orderID)
}

// Cancel transitions the order to cancelled and restores its reserved stock.
// Orders already shipped or delivered cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID string) (orders.Order, error) {
	return s.UpdateShippingStatus(ctx, orderID, orders.ShippingCancelled)
}

// AssignWaybill records the carrier tracking number. Allowed only before the
// order ships.
func (s *Service) AssignWaybill(ctx context.Context, orderID, number string) (orders.Order, error) {
	if number == "" {
		return orders.Order{}, orders.ErrMissingWaybill
	}
	if err := s.Orders.AssignWaybill(ctx, orderID, number); err != nil {
		return orders.Order{}, err
	}
	return s.Orders.Get(ctx, orderID)
}

// UpdatePaymentStatus applies a payment transition. Payment state is not
// constrained by shipping state; a failed payment does not release stock,
// that only happens through cancellation.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, next orders.PaymentStatus) (orders.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}

	from := o.PaymentStatus
	if !orders.CanTransitionPayment(from, next) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, from, next)
	}
	if err := s.Orders.UpdatePaymentStatus(ctx, orderID, from, next); err != nil {
		return orders.Order{}, err
	}
	s.publishStatusChanged(orderID, "payment", string(from), string(next))

	return s.Orders.Get(ctx, orderID)
}

// releaseReservation is the inverse of the checkout reservation. Cancellation
// is unreachable after shipment, so the line items are exactly what is still
// reserved.
func (s *Service) releaseReservation(ctx context.Context, o orders.Order) {
	// The cancelled status is already persisted at this point. A request
	// context that died in between must not keep the stock locked up.
	ctx = context.WithoutCancel(ctx)
	for _, it := range o.Items {
		if err := s.Ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, orders.ErrProductNotFound) {
				s.Log.Warn().Str("order_id", o.ID).Str("product_id", it.ProductID).
					Msg("release skipped, product gone")
				continue
			}
			s.Log.Error().Err(err).Str("order_id", o.ID).Str("product_id", it.ProductID).
				Int("qty", it.Quantity).Msg("stock release failed")
		}
	}
}

func (s *Service) publishStatusChanged(orderID, kind, from, to string) {
	if s.Events == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderStatusChangedPayload{
			OrderID: orderID, Kind: kind, From: from, To: to,
		}),
	}
	s.Events.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishCancelled(o orders.Order) {
	if s.Cancels == nil {
		return
	}
	released := make([]orders.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		released = append(released, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(orders.OrderCancelledPayload{OrderID: o.ID, Released: released}),
	}
	s.Cancels.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
