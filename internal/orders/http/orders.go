package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/microstore/microstore/internal/orders/domain"
	"github.com/microstore/microstore/internal/orders/service"
	"github.com/microstore/microstore/internal/orders/store"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// OrdersHandler serves the /api/orders endpoints.
type OrdersHandler struct {
	OrderService *service.OrderService
}

func (h *OrdersHandler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var input service.PlaceOrderInput
	if err := dec.Decode(&input); err != nil {
		httpx.BadRequestProblem(w, "request body is not valid JSON for this endpoint")
		return
	}

	order, err := h.OrderService.PlaceOrder(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrder):
			httpx.BadRequestProblem(w, err.Error())
		case errors.Is(err, service.ErrUnknownSKU):
			httpx.NotFoundProblem(w, err.Error())
		case errors.Is(err, service.ErrInsufficientStock):
			httpx.ConflictProblem(w, err.Error())
		default:
			log.Error("failed to place order", "error", err)
			httpx.InternalProblem(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	filter := store.OrderFilter{
		CustomerEmail: strings.TrimSpace(r.URL.Query().Get("email")),
	}

	orders, err := h.OrderService.ListOrders(ctx, filter)
	if err != nil {
		log.Error("failed to list orders", "error", err)
		httpx.InternalProblem(w)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	id := r.PathValue("id")
	order, err := h.OrderService.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			httpx.NotFoundProblem(w, "no order with id "+id)
			return
		}
		log.Error("failed to get order", "order_id", id, "error", err)
		httpx.InternalProblem(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, order)
}
