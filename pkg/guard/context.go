package guard

import (
	"context"

	"github.com/microstore/microstore/pkg/jwtx"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

func contextWithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFromContext returns the verified claims attached by the
// authentication middleware, or false when the request was not
// authenticated.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}
