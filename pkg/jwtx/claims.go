package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for standard OAuth2/JWT flows.
// These provide sensible security defaults but can be overridden per-client.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 24 * time.Hour
)

// Claims are access-token claims shared by every service. The scope claim is
// a single space-joined string, which is what resource servers and standard
// OAuth2 tooling expect.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is the space-joined list of granted scopes, e.g.
	// "inventory.read inventory.write".
	Scope string `json:"scope,omitempty"`

	// Roles granted to the subject, e.g. ["USER", "ADMIN"]. Empty for
	// machine clients.
	Roles []string `json:"roles,omitempty"`

	// Username of the authenticated user. Empty for machine clients, where
	// sub carries the client_id instead.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject string,
	scopes []string,
	roles []string,
	username string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scope:    strings.Join(scopes, " "),
		Roles:    roles,
		Username: username,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ScopeList splits the scope claim into individual scope values.
func (c *Claims) ScopeList() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether the token grants the given scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.ScopeList(), scope)
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
