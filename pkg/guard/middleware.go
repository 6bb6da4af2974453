package guard

import (
	"net/http"
	"strings"

	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

// Authenticate verifies the bearer token on every request and injects the
// claims into the request context. Missing, malformed, expired or
// wrong-issuer tokens all produce 401 with an RFC 6750 WWW-Authenticate
// header and an RFC 7807 problem body.
func (g *Guard) Authenticate() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := g.Verify(ctx, raw)
			if err != nil {
				log.Warn("token verification failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = contextWithClaims(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated requests whose token lacks the given
// scope. Runs after Authenticate; an unauthenticated request gets 401 here
// too rather than leaking which scopes a route wants.
func RequireScope(required string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if !claims.HasScope(required) {
				writeBearerScopeError(w, required)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant 401 for bearer auth failures, with a problem body.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	httpx.WriteProblem(w, httpx.Problem{
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: desc,
	})
}

// RFC 6750-compliant 403 for insufficient_scope, with a problem body.
func writeBearerScopeError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	httpx.WriteProblem(w, httpx.Problem{
		Title:  "Forbidden",
		Status: http.StatusForbidden,
		Detail: "the access token does not have the required scope",
	})
}
