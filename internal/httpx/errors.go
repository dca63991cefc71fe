package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "INVALID_REQUEST", Message: msg})
}

// writeError maps domain errors to a status and a stable error code.
// Anything unrecognised is logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		notFound   *orders.ProductNotFoundError
		short      *orders.InsufficientStockError
		validation validator.ValidationErrors
	)
	switch {
	case errors.Is(err, orders.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: err.Error()})
	case errors.Is(err, orders.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "ACCESS_DENIED", Message: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: "PRODUCT_NOT_FOUND", Message: err.Error(),
			Details: map[string]any{"productIds": notFound.IDs},
		})
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "PRODUCT_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, orders.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "USER_NOT_FOUND", Message: err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "ORDER_NOT_FOUND", Message: err.Error()})
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "INSUFFICIENT_STOCK", Message: err.Error(), Retryable: orders.IsRetryable(err),
			Details: map[string]any{
				"productId":   short.ProductID,
				"productName": short.Name,
				"requested":   short.Requested,
				"available":   short.Available,
			},
		})
	case errors.Is(err, orders.ErrInvalidRequest), errors.Is(err, catalog.ErrInvalidInput), errors.As(err, &validation):
		badRequest(w, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "internal error"})
	}
}
