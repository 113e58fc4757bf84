package inventory

import (
	"context"
	"sync"

	"github.com/shoply/orders/internal/orders"
)

type stockEntry struct {
	mu        sync.Mutex
	available int
}

// MemoryLedger keeps stock counters behind per-product locks. Reservations on
// different products never contend.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*stockEntry
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: map[string]*stockEntry{}}
}

// Seed creates or resets a product's available stock.
func (l *MemoryLedger) Seed(productID string, available int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[productID] = &stockEntry{available: available}
}

// Available returns the current stock count for assertions.
func (l *MemoryLedger) Available(productID string) int {
	l.mu.RLock()
	e, ok := l.entries[productID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

func (l *MemoryLedger) entry(productID string) *stockEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[productID]
}

func (l *MemoryLedger) TryReserve(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	e := l.entry(productID)
	if e == nil {
		return orders.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available < qty {
		return &orders.InsufficientStockError{ProductID: productID, Requested: qty, Available: e.available}
	}
	e.available -= qty
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	e := l.entry(productID)
	if e == nil {
		return orders.ErrProductNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available += qty
	return nil
}
