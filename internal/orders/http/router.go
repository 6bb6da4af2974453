package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/microstore/microstore/internal/orders/service"
	"github.com/microstore/microstore/internal/orders/store"
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

	store        store.Store
	OrderService *service.OrderService
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
	r.registerOrders()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOrders() {
	h := &OrdersHandler{OrderService: r.OrderService}

	// Orders use the same scope policy as inventory: reads need
	// inventory.read, mutations need inventory.write.
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

	r.Mux.Handle("POST /api/orders", write(h.HandlePlace))
	r.Mux.Handle("GET /api/orders", read(h.HandleList))
	r.Mux.Handle("GET /api/orders/{id}", read(h.HandleGet))
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
