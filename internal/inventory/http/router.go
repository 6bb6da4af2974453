package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/microstore/microstore/internal/inventory/service"
	"github.com/microstore/microstore/internal/inventory/store"
	"github.com/microstore/microstore/pkg/guard"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	guard        *guard.Guard
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store       store.Store
	ItemService *service.ItemService
}

func NewRouter(
	g *guard.Guard,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		guard:        g,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerItems()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerItems() {
	h := &ItemsHandler{ItemService: r.ItemService}

	read := func(handler http.HandlerFunc) http.Handler {
		return httpx.Chain(handler,
			r.guard.Authenticate(),
			guard.RequireScope("inventory.read"),
			httpx.RateLimitByIP(httpx.LenientLimit),
		)
	}
	write := func(handler http.HandlerFunc) http.Handler {
		return httpx.Chain(handler,
			r.guard.Authenticate(),
			guard.RequireScope("inventory.write"),
			httpx.RateLimitByIP(httpx.LenientLimit),
		)
	}

	r.Mux.Handle("POST /api/inventory", write(h.HandleCreate))
	r.Mux.Handle("GET /api/inventory", read(h.HandleList))
	r.Mux.Handle("GET /api/inventory/{sku}", read(h.HandleGet))
	r.Mux.Handle("PATCH /api/inventory/{sku}", write(h.HandleUpdate))
	r.Mux.Handle("DELETE /api/inventory/{sku}", write(h.HandleDelete))
}

func (r *Router) registerSystem() {
	// Health endpoints are mounted outside the guard
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.guard),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
