package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/microstore/microstore/internal/auth/service"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/microstore/microstore/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	TokenService     *service.TokenService
	AuthorizeService *service.AuthorizeService
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
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
	r.registerOAuth2()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
	}

	// GET /authorize - lenient rate limit (mostly just displays forms)
	r.Mux.Handle("GET /oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /authorize - strict rate limit (authentication attempts)
	// Note: Rate limited by IP + username form field to prevent brute force
	r.Mux.Handle("POST /oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// POST /token - strict rate limit by IP + client_id (covers all grant types)
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "client_id"),
		),
	)

	// GET /jwks - public endpoint with high limit, also served at the
	// conventional well-known path
	jwks := httpx.Chain(JWKSHandler(r.keys),
		httpx.RateLimitByIP(httpx.PublicLimit),
	)
	r.Mux.Handle("GET /oauth2/jwks", jwks)
	r.Mux.Handle("GET /.well-known/jwks.json", jwks)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
