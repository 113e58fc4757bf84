package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shoply/orders/internal/orders"
)

type memoryItem struct {
	productID string
	quantity  int
	addedAt   time.Time
}

// MemoryStore backs unit tests. It resolves live product data from a catalog
// seeded by the test, mirroring the join the Postgres store performs.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]map[string]*memoryItem // userID -> productID -> item
	catalog  map[string]orders.Product
	sequence int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   map[string]map[string]*memoryItem{},
		catalog: map[string]orders.Product{},
	}
}

// SeedProduct registers catalog data resolved on ListItems. Re-seeding with a
// new price models a catalog price change after items were added.
func (s *MemoryStore) SeedProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[p.ID] = p
}

func (s *MemoryStore) AddItem(_ context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog[productID]; !ok {
		return orders.ErrProductNotFound
	}
	byProduct, ok := s.items[userID]
	if !ok {
		byProduct = map[string]*memoryItem{}
		s.items[userID] = byProduct
	}
	if it, ok := byProduct[productID]; ok {
		it.quantity += qty
		return nil
	}
	s.sequence++
	byProduct[productID] = &memoryItem{
		productID: productID,
		quantity:  qty,
		addedAt:   time.Unix(0, int64(s.sequence)), // stable insertion order
	}
	return nil
}

func (s *MemoryStore) SetQuantity(_ context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return orders.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[userID][productID]
	if !ok {
		return orders.ErrCartItemNotFound
	}
	it.quantity = qty
	return nil
}

func (s *MemoryStore) RemoveItem(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[userID][productID]; !ok {
		return orders.ErrCartItemNotFound
	}
	delete(s.items[userID], productID)
	return nil
}

func (s *MemoryStore) RemoveItems(_ context.Context, userID string, productIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range productIDs {
		delete(s.items[userID], id)
	}
	return nil
}

func (s *MemoryStore) ListItems(_ context.Context, userID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, it := range s.items[userID] {
		p, ok := s.catalog[it.productID]
		if !ok {
			return nil, orders.ErrProductNotFound
		}
		out = append(out, Entry{
			ProductID:   it.productID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    it.quantity,
			Packaging:   p.Packaging,
			AddedAt:     it.addedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}
