package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shoply/orders/internal/cart"
)

type CartHandler struct {
	Store cart.Store
	Log   zerolog.Logger
}

type addCartItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type setCartQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Get("/cart", h.listItems)
		r.Post("/cart/items", h.addItem)
		r.Put("/cart/items/{productID}", h.setQuantity)
		r.Delete("/cart/items/{productID}", h.removeItem)
	})
}

func (h *CartHandler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if items == nil {
		items = []cart.Entry{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing product_id"})
		return
	}
	if err := h.Store.AddItem(r.Context(), userIDFrom(r.Context()), req.ProductID, req.Quantity); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setCartQuantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	productID := chi.URLParam(r, "productID")
	if err := h.Store.SetQuantity(r.Context(), userIDFrom(r.Context()), productID, req.Quantity); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if err := h.Store.RemoveItem(r.Context(), userIDFrom(r.Context()), productID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
