package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shoply/orders/internal/orders"
)

type errorBody struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Unexpected
// failures are logged and never echoed to the caller.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var stockErr *orders.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorBody{Error: stockErr.Error(), ProductID: stockErr.ProductID})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrCartItemNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrEmptySelection),
		errors.Is(err, orders.ErrQuantityLimitExceeded),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrAddressInvalid),
		errors.Is(err, orders.ErrMissingWaybill):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
