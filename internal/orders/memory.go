package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory order repository used by unit tests and local
// runs without Postgres.
type MemoryRepo struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

var _ Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: map[string]*Order{}}
}

func cloneOrder(o *Order) Order {
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		clone.DeliveredAt = &t
	}
	return clone
}

func (r *MemoryRepo) Insert(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := cloneOrder(&o)
	r.orders[o.ID] = &clone
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, orderID string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateShippingStatus(_ context.Context, orderID string, from, to ShippingStatus, deliveredAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.ShippingStatus != from {
		return ErrInvalidTransition
	}
	o.ShippingStatus = to
	if deliveredAt != nil {
		t := *deliveredAt
		o.DeliveredAt = &t
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepo) UpdatePaymentStatus(_ context.Context, orderID string, from, to PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.PaymentStatus != from {
		return ErrInvalidTransition
	}
	o.PaymentStatus = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepo) AssignWaybill(_ context.Context, orderID, number string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.ShippingStatus != ShippingNotYetShipped && o.ShippingStatus != ShippingProcessing {
		return ErrInvalidTransition
	}
	o.WaybillNumber = number
	o.UpdatedAt = time.Now().UTC()
	return nil
}
