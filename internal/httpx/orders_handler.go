package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Svc      *orders.Service
	Validate *validator.Validate
	Log      *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listAll)
		r.Get("/my", h.listMine)
		r.Get("/status/{status}", h.listByStatus)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}/status", h.updateStatus)
	})
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.Username == "" {
		writeError(w, h.Log, orders.ErrUnauthenticated)
		return
	}
	var req orders.PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.PlaceOrder(ctx, p, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(chi.URLParam(r, "id"))
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.GetOrder(ctx, principal(r), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, h.Svc.ListForUser)
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, h.Svc.ListAll)
}

func (h *OrdersHandler) listByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := orders.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.listPage(w, r, func(ctx context.Context, p orders.Principal, page orders.Page) (orders.PageResult, error) {
		return h.Svc.ListByStatus(ctx, p, status, page)
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(chi.URLParam(r, "id"))
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, principal(r), id, status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type listFunc func(ctx context.Context, p orders.Principal, page orders.Page) (orders.PageResult, error)

func (h *OrdersHandler) listPage(w http.ResponseWriter, r *http.Request, list listFunc) {
	page, ok := pageParams(r)
	if !ok {
		badRequest(w, "invalid page parameters")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := list(ctx, principal(r), page)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
