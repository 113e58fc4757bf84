package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/shoply/orders/internal/cart"
	"github.com/shoply/orders/internal/inventory"
	"github.com/shoply/orders/internal/orders"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	carts  *cart.MemoryStore
	ledger *inventory.MemoryLedger
	repo   *orders.MemoryRepo
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		carts:  cart.NewMemoryStore(),
		ledger: inventory.NewMemoryLedger(),
		repo:   orders.NewMemoryRepo(),
	}
	f.svc = &Service{
		Carts:       f.carts,
		Ledger:      f.ledger,
		Orders:      f.repo,
		MaxUnits:    10,
		ShippingFee: decimal.RequireFromString("5.00"),
		ServiceName: "test",
		Log:         zerolog.Nop(),
	}
	return f
}

func (f *fixture) seed(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	f.carts.SeedProduct(orders.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)})
	f.ledger.Seed(id, stock)
}

func validAddress() orders.Address {
	return orders.Address{
		FullName:    "Dana Reeve",
		Line1:       "12 Harbor Way",
		City:        "Portland",
		State:       "OR",
		PostalCode:  "97201",
		Country:     "US",
		PhoneNumber: "+1-555-0134",
	}
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "Coffee Beans", "100.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 2))

	order, err := f.svc.PlaceOrder(ctx, "u1", []string{"p1"}, validAddress())
	require.NoError(t, err)

	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, orders.PaymentPending, order.PaymentStatus)
	assert.Equal(t, orders.ShippingNotYetShipped, order.ShippingStatus)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Coffee Beans", order.Items[0].ProductName)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("200.00")))
	assert.True(t, order.FinalPrice.Equal(decimal.RequireFromString("205.00")))
	assert.True(t, order.Reconciled())

	// stock decremented, cart emptied, order persisted
	assert.Equal(t, 3, f.ledger.Available("p1"))
	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
}

func TestPlaceOrder_EmptySelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "Coffee Beans", "100.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 2))

	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"other"}, validAddress())
	require.ErrorIs(t, err, orders.ErrEmptySelection)
	assert.Equal(t, 5, f.ledger.Available("p1"))
}

func TestPlaceOrder_QuantityLimitExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "pa", "A", "10.00", 50)
	f.seed(t, "pb", "B", "20.00", 50)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pa", 3))
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pb", 9))

	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"pa", "pb"}, validAddress())
	require.ErrorIs(t, err, orders.ErrQuantityLimitExceeded)

	// no reservation was attempted for either product
	assert.Equal(t, 50, f.ledger.Available("pa"))
	assert.Equal(t, 50, f.ledger.Available("pb"))
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "pa", "A", "10.00", 5)
	f.seed(t, "pb", "B", "20.00", 1)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pa", 2))
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pb", 3))

	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"pa", "pb"}, validAddress())

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "pb", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// every product touched in the attempt is back to its initial count
	assert.Equal(t, 5, f.ledger.Available("pa"))
	assert.Equal(t, 1, f.ledger.Available("pb"))

	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestPlaceOrder_SnapshotsPriceAtCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "Coffee Beans", "100.00", 10)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 2))

	order, err := f.svc.PlaceOrder(ctx, "u1", []string{"p1"}, validAddress())
	require.NoError(t, err)

	// catalog price changes after the order is placed
	f.carts.SeedProduct(orders.Product{ID: "p1", Name: "Coffee Beans", Price: decimal.RequireFromString("150.00")})

	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, stored.Subtotal.Equal(decimal.RequireFromString("200.00")))
}

func TestPlaceOrder_UnselectedItemsStayInCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "pa", "A", "10.00", 5)
	f.seed(t, "pb", "B", "20.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pa", 1))
	require.NoError(t, f.carts.AddItem(ctx, "u1", "pb", 2))

	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"pa"}, validAddress())
	require.NoError(t, err)

	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pb", items[0].ProductID)
	assert.Equal(t, 5, f.ledger.Available("pb"))
}

func TestPlaceOrder_AddressInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "A", "10.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 1))

	addr := validAddress()
	addr.PostalCode = ""
	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"p1"}, addr)
	require.ErrorIs(t, err, orders.ErrAddressInvalid)
	assert.Equal(t, 5, f.ledger.Available("p1"))
}

type failingRepo struct {
	orders.Repository
}

func (f *failingRepo) Insert(context.Context, orders.Order) error {
	return errors.New("storage unavailable")
}

func TestPlaceOrder_PersistFailureReleasesReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "A", "10.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 2))
	f.svc.Orders = &failingRepo{Repository: f.repo}

	_, err := f.svc.PlaceOrder(ctx, "u1", []string{"p1"}, validAddress())
	require.Error(t, err)
	assert.Equal(t, 5, f.ledger.Available("p1"))

	// the cart survives a failed checkout
	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// ctxLedger fails like a database-backed ledger does once the context is
// cancelled.
type ctxLedger struct {
	inner inventory.Ledger
}

func (l *ctxLedger) TryReserve(ctx context.Context, productID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.inner.TryReserve(ctx, productID, qty)
}

func (l *ctxLedger) Release(ctx context.Context, productID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.inner.Release(ctx, productID, qty)
}

// disconnectingRepo cancels the request context at the commit point, as when
// the client goes away mid-checkout.
type disconnectingRepo struct {
	orders.Repository
	cancel context.CancelFunc
}

func (r *disconnectingRepo) Insert(ctx context.Context, _ orders.Order) error {
	r.cancel()
	return ctx.Err()
}

func TestPlaceOrder_ReleaseSurvivesRequestCancellation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", "A", "10.00", 5)
	require.NoError(t, f.carts.AddItem(context.Background(), "u1", "p1", 2))

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Ledger = &ctxLedger{inner: f.ledger}
	f.svc.Orders = &disconnectingRepo{Repository: f.repo, cancel: cancel}

	_, err := f.svc.PlaceOrder(reqCtx, "u1", []string{"p1"}, validAddress())
	require.Error(t, err)

	// the rollback must land even though the request context is dead
	assert.Equal(t, 5, f.ledger.Available("p1"))
}

func TestPlaceOrder_ConcurrentCheckoutsForLastUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "A", "10.00", 3)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 2))
	require.NoError(t, f.carts.AddItem(ctx, "u2", "p1", 2))

	results := make([]error, 2)
	var g errgroup.Group
	for i, user := range []string{"u1", "u2"} {
		g.Go(func() error {
			_, results[i] = f.svc.PlaceOrder(ctx, user, []string{"p1"}, validAddress())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var successes, stockFailures int
	for _, err := range results {
		var stockErr *orders.InsufficientStockError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &stockErr):
			stockFailures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 1, f.ledger.Available("p1"))
}

func TestPlaceOrder_DiscountApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", "A", "100.00", 5)
	require.NoError(t, f.carts.AddItem(ctx, "u1", "p1", 1))
	f.svc.Discount = func(_ context.Context, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
		return decimal.RequireFromString("15.00"), nil
	}

	order, err := f.svc.PlaceOrder(ctx, "u1", []string{"p1"}, validAddress())
	require.NoError(t, err)
	assert.True(t, order.Discount.Equal(decimal.RequireFromString("15.00")))
	assert.True(t, order.FinalPrice.Equal(decimal.RequireFromString("90.00")))
	assert.True(t, order.Reconciled())
}
