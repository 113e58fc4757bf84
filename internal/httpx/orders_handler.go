package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shoply/orders/internal/billing"
	"github.com/shoply/orders/internal/checkout"
	"github.com/shoply/orders/internal/fulfillment"
	"github.com/shoply/orders/internal/orders"
	"github.com/shoply/orders/internal/redisx"
)

type OrdersHandler struct {
	Checkout    *checkout.Service
	Fulfillment *fulfillment.Service
	Repo        orders.Repository
	Redis       *redis.Client
	Bills       billing.Generator
	Log         zerolog.Logger
}

type placeOrderReq struct {
	ProductIDs []string       `json:"product_ids"`
	Address    orders.Address `json:"address"`
}

type updateStatusReq struct {
	ShippingStatus string `json:"shipping_status"`
}

type assignWaybillReq struct {
	WaybillNumber string `json:"waybill_number"`
}

type statusView struct {
	ShippingStatus orders.ShippingStatus `json:"shipping_status"`
	PaymentStatus  orders.PaymentStatus  `json:"payment_status"`
}

// cachedStatus carries the owner so a cache hit can still enforce visibility.
type cachedStatus struct {
	UserID string `json:"user_id"`
	statusView
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Post("/orders", h.placeOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Get("/orders/{id}/generate-bill", h.generateBill)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Put("/orders/{id}", h.updateStatus)
			r.Put("/orders/{id}/waybill", h.assignWaybill)
			r.Delete("/orders/{id}", h.cancelOrder)
		})
	})
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	// A client-supplied request id makes retried checkouts idempotent: the
	// retry gets the order the first attempt placed.
	idemKey := ""
	if reqID := r.Header.Get("X-Request-Id"); reqID != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, userIDFrom(r.Context()), reqID)
		if id, err := h.Redis.Get(r.Context(), idemKey).Result(); err == nil && id != "" {
			if o, err := h.Repo.Get(r.Context(), id); err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	order, err := h.Checkout.PlaceOrder(r.Context(), userIDFrom(r.Context()), req.ProductIDs, req.Address)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(r.Context(), idemKey, order.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(r.Context(), order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.ListByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// loadVisible fetches an order the caller may see: owners read their own,
// admins read any. Others get not-found rather than a hint the order exists.
func (h *OrdersHandler) loadVisible(r *http.Request) (orders.Order, error) {
	o, err := h.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return orders.Order{}, err
	}
	if o.UserID != userIDFrom(r.Context()) && !isAdmin(r.Context()) {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(r.Context(), key).Result(); err == nil && s != "" {
			var cached cachedStatus
			if json.Unmarshal([]byte(s), &cached) == nil &&
				(cached.UserID == userIDFrom(r.Context()) || isAdmin(r.Context())) {
				writeJSON(w, http.StatusOK, cached.statusView)
				return
			}
		}
	}

	o, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, statusView{ShippingStatus: o.ShippingStatus, PaymentStatus: o.PaymentStatus})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	next, err := orders.ToShippingStatus(req.ShippingStatus)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	o, err := h.Fulfillment.UpdateShippingStatus(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) assignWaybill(w http.ResponseWriter, r *http.Request) {
	var req assignWaybillReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	o, err := h.Fulfillment.AssignWaybill(r.Context(), chi.URLParam(r, "id"), req.WaybillNumber)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Fulfillment.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) generateBill(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadVisible(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	artifact, err := h.Bills.Render(r.Context(), billing.FromOrder(o, time.Now().UTC()))
	if err != nil {
		writeError(w, h.Log, fmt.Errorf("generate bill: %w", err))
		return
	}

	w.Header().Set("Content-Type", h.Bills.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+o.ID+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(cachedStatus{
		UserID:     o.UserID,
		statusView: statusView{ShippingStatus: o.ShippingStatus, PaymentStatus: o.PaymentStatus},
	})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
