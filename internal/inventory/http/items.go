package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/microstore/microstore/internal/inventory/domain"
	"github.com/microstore/microstore/internal/inventory/service"
	"github.com/microstore/microstore/internal/inventory/store"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// ItemsHandler serves the /api/inventory endpoints.
type ItemsHandler struct {
	ItemService *service.ItemService
}

func (h *ItemsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var input service.CreateItemInput
	if !decodeJSONBody(w, r, &input) {
		return
	}

	item, err := h.ItemService.CreateItem(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidItem):
			httpx.BadRequestProblem(w, err.Error())
		case errors.Is(err, service.ErrSKUExists):
			httpx.ConflictProblem(w, "an item with this sku already exists")
		default:
			log.Error("failed to create item", "error", err)
			httpx.InternalProblem(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *ItemsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	filter := store.ItemFilter{
		SKU:  strings.TrimSpace(r.URL.Query().Get("sku")),
		Name: strings.TrimSpace(r.URL.Query().Get("name")),
	}

	items, err := h.ItemService.ListItems(ctx, filter)
	if err != nil {
		log.Error("failed to list items", "error", err)
		httpx.InternalProblem(w)
		return
	}
	if items == nil {
		items = []domain.Item{}
	}

	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ItemsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sku := r.PathValue("sku")
	item, err := h.ItemService.GetItem(ctx, sku)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			httpx.NotFoundProblem(w, "no item with sku "+sku)
			return
		}
		log.Error("failed to get item", "sku", sku, "error", err)
		httpx.InternalProblem(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *ItemsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sku := r.PathValue("sku")
	var input service.UpdateItemInput
	if !decodeJSONBody(w, r, &input) {
		return
	}

	item, err := h.ItemService.UpdateItem(ctx, sku, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidItem):
			httpx.BadRequestProblem(w, err.Error())
		case errors.Is(err, service.ErrItemNotFound):
			httpx.NotFoundProblem(w, "no item with sku "+sku)
		default:
			log.Error("failed to update item", "sku", sku, "error", err)
			httpx.InternalProblem(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *ItemsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sku := r.PathValue("sku")
	if err := h.ItemService.DeleteItem(ctx, sku); err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			httpx.NotFoundProblem(w, "no item with sku "+sku)
			return
		}
		log.Error("failed to delete item", "sku", sku, "error", err)
		httpx.InternalProblem(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeJSONBody decodes the request body into v, writing a problem response
// and returning false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.BadRequestProblem(w, "request body is not valid JSON for this endpoint")
		return false
	}
	return true
}
