package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/orders/internal/billing"
	"github.com/shoply/orders/internal/cart"
	"github.com/shoply/orders/internal/checkout"
	"github.com/shoply/orders/internal/fulfillment"
	"github.com/shoply/orders/internal/inventory"
	"github.com/shoply/orders/internal/orders"
)

type testEnv struct {
	router *chi.Mux
	carts  *cart.MemoryStore
	ledger *inventory.MemoryLedger
	repo   *orders.MemoryRepo
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	env := &testEnv{
		router: NewRouter(log),
		carts:  cart.NewMemoryStore(),
		ledger: inventory.NewMemoryLedger(),
		repo:   orders.NewMemoryRepo(),
	}

	co := &checkout.Service{
		Carts:       env.carts,
		Ledger:      env.ledger,
		Orders:      env.repo,
		MaxUnits:    10,
		ShippingFee: decimal.RequireFromString("5.00"),
		ServiceName: "test",
		Log:         log,
	}
	ff := &fulfillment.Service{
		Orders:      env.repo,
		Ledger:      env.ledger,
		ServiceName: "test",
		Log:         log,
	}

	(&CartHandler{Store: env.carts, Log: log}).Register(env.router)
	(&OrdersHandler{
		Checkout:    co,
		Fulfillment: ff,
		Repo:        env.repo,
		Bills:       billing.JSONGenerator{},
		Log:         log,
	}).Register(env.router)
	return env
}

func (e *testEnv) seed(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	e.carts.SeedProduct(orders.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)})
	e.ledger.Seed(id, stock)
}

func (e *testEnv) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) placeOrder(t *testing.T, userID string, productIDs []string) orders.Order {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/orders", userID, "", placeOrderReq{
		ProductIDs: productIDs,
		Address:    testAddress(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

func testAddress() orders.Address {
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

func TestIdentityRequired(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{"/cart", "/orders"} {
		rec := env.do(t, http.MethodGet, path, "", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminEndpointsRejectRegularUsers(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodPut, "/orders/o1", "u1", "", updateStatusReq{ShippingStatus: "processing"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/orders/o1", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)

	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []cart.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	rec = env.do(t, http.MethodPut, "/cart/items/p1", "u1", "", setCartQuantityReq{Quantity: 4})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/cart/items/p1", "u1", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCartEndpoints_Errors(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)

	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "ghost", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/cart/items", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/cart/items/p1", "u1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrderEndpoint(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusNoContent, rec.Code)

	o := env.placeOrder(t, "u1", []string{"p1"})
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, orders.ShippingNotYetShipped, o.ShippingStatus)
	assert.True(t, o.FinalPrice.Equal(decimal.RequireFromString("205.00")))
	assert.Equal(t, 3, env.ledger.Available("p1"))
}

func TestPlaceOrderEndpoint_Errors(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 1)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 3})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// nothing selected
	rec = env.do(t, http.MethodPost, "/orders", "u1", "", placeOrderReq{ProductIDs: []string{"other"}, Address: testAddress()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// invalid address
	addr := testAddress()
	addr.City = ""
	rec = env.do(t, http.MethodPost, "/orders", "u1", "", placeOrderReq{ProductIDs: []string{"p1"}, Address: addr})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// not enough stock; the conflict body names the product
	rec = env.do(t, http.MethodPost, "/orders", "u1", "", placeOrderReq{ProductIDs: []string{"p1"}, Address: testAddress()})
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "p1", body.ProductID)
}

func TestGetOrder_Visibility(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o := env.placeOrder(t, "u1", []string{"p1"})

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID, "u1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// a stranger sees not-found, not forbidden
	rec = env.do(t, http.MethodGet, "/orders/"+o.ID, "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID, "staff", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/orders/missing", "u1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders_OnlyOwn(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusNoContent, rec.Code)
	env.placeOrder(t, "u1", []string{"p1"})

	rec = env.do(t, http.MethodGet, "/orders", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodGet, "/orders", "u2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestOrderStatusEndpoint(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o := env.placeOrder(t, "u1", []string{"p1"})

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID+"/status", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sv statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sv))
	assert.Equal(t, orders.ShippingNotYetShipped, sv.ShippingStatus)
	assert.Equal(t, orders.PaymentPending, sv.PaymentStatus)

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID+"/status", "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStatusFlow(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o := env.placeOrder(t, "u1", []string{"p1"})

	// unknown status value
	rec = env.do(t, http.MethodPut, "/orders/"+o.ID, "staff", "admin", updateStatusReq{ShippingStatus: "en_route"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// skipping straight to shipped is an illegal transition
	rec = env.do(t, http.MethodPut, "/orders/"+o.ID, "staff", "admin", updateStatusReq{ShippingStatus: "shipped"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/orders/"+o.ID, "staff", "admin", updateStatusReq{ShippingStatus: "processing"})
	require.Equal(t, http.StatusOK, rec.Code)

	// shipped needs a waybill first
	rec = env.do(t, http.MethodPut, "/orders/"+o.ID, "staff", "admin", updateStatusReq{ShippingStatus: "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/orders/"+o.ID+"/waybill", "staff", "admin", assignWaybillReq{WaybillNumber: "WB-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/orders/"+o.ID, "staff", "admin", updateStatusReq{ShippingStatus: "shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, orders.ShippingShipped, updated.ShippingStatus)
	assert.Equal(t, "WB-1", updated.WaybillNumber)
}

func TestCancelOrderEndpoint(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o := env.placeOrder(t, "u1", []string{"p1"})
	require.Equal(t, 3, env.ledger.Available("p1"))

	rec = env.do(t, http.MethodDelete, "/orders/"+o.ID, "staff", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, orders.ShippingCancelled, cancelled.ShippingStatus)
	assert.Equal(t, 5, env.ledger.Available("p1"))

	// a second cancel conflicts
	rec = env.do(t, http.MethodDelete, "/orders/"+o.ID, "staff", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateBillEndpoint(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "p1", "Coffee Beans", "100.00", 5)
	rec := env.do(t, http.MethodPost, "/cart/items", "u1", "", addCartItemReq{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o := env.placeOrder(t, "u1", []string{"p1"})

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID+"/generate-bill", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	var inv billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Equal(t, "INV-"+o.ID, inv.InvoiceNumber)
	assert.Equal(t, "205.00", inv.Total)

	rec = env.do(t, http.MethodGet, "/orders/"+o.ID+"/generate-bill", "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
