package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/microstore/microstore/pkg/jwtx"
)

// Guard verifies bearer tokens for a resource server. Tokens must be
// RS256-signed by a key published in the authorization server's JWKS and
// carry the expected issuer.
type Guard struct {
	keys     *RemoteKeySet
	issuer   string
	audience []string
}

// Options configures a Guard.
type Options struct {
	// AuthBaseURL is the authorization server base URL, e.g.
	// "http://localhost:9000".
	AuthBaseURL string

	// Issuer the token's iss claim must equal. Required.
	Issuer string

	// Audience values accepted in the aud claim. Empty disables the check.
	Audience []string

	// KeyTTL controls how long fetched JWKS keys are cached.
	KeyTTL time.Duration
}

// New creates a Guard backed by a RemoteKeySet.
func New(opts Options) (*Guard, error) {
	if opts.AuthBaseURL == "" {
		return nil, errors.New("guard: AuthBaseURL is required")
	}
	if opts.Issuer == "" {
		return nil, errors.New("guard: Issuer is required")
	}
	return &Guard{
		keys:     NewRemoteKeySet(opts.AuthBaseURL, opts.KeyTTL),
		issuer:   opts.Issuer,
		audience: opts.Audience,
	}, nil
}

// Verify validates a raw JWT string and returns its claims. Only RS256 is
// accepted; unsigned or HMAC-signed tokens fail at parse time.
func (g *Guard) Verify(ctx context.Context, tokenStr string) (jwtx.Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &jwtx.Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("guard: missing kid")
		}
		return g.keys.Key(ctx, kid)
	})
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("guard: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*jwtx.Claims)
	if !ok || !token.Valid {
		return jwtx.Claims{}, errors.New("guard: invalid token claims")
	}

	if err := claims.ValidateIssuer(g.issuer); err != nil {
		return jwtx.Claims{}, err
	}
	if err := claims.ValidateAudience(g.audience); err != nil {
		return jwtx.Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return jwtx.Claims{}, err
	}

	return *claims, nil
}

// Ready reports whether the guard can verify tokens right now.
func (g *Guard) Ready(ctx context.Context) bool {
	return g.keys.Ready(ctx)
}
