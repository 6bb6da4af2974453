package domain

import (
	"errors"
	"slices"
	"time"
)

// Token endpoint authentication methods.
const (
	AuthMethodNone        = "none"
	AuthMethodSecretBasic = "client_secret_basic"
)

// Grant type identifiers.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// Client is a registered OAuth2 client. Public clients (SPAs, native apps)
// have no secret and authenticate with PKCE; confidential clients carry an
// Argon2id secret hash.
type Client struct {
	ID                 string // ULID primary key
	ClientID           string // public identifier, e.g. "microstore-spa"
	Name               string
	SecretHash         string // empty for public clients
	AuthMethod         string // "none" or "client_secret_basic"
	GrantTypes         []string
	RedirectURIs       []string
	Scopes             []string
	RequireConsent     bool
	RequirePKCE        bool
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ReuseRefreshTokens bool // skip rotation on refresh when true
	Disabled           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate enforces the registration invariants: a client offering the
// authorization code grant needs at least one redirect URI, and a public
// client offering it must use PKCE.
func (c Client) Validate() error {
	if c.AllowsGrant(GrantAuthorizationCode) {
		if len(c.RedirectURIs) == 0 {
			return errors.New("client: authorization_code grant requires a redirect URI")
		}
		if c.IsPublic() && !c.RequirePKCE {
			return errors.New("client: public authorization_code client requires PKCE")
		}
	}
	return nil
}

// IsPublic reports whether the client authenticates without a secret.
func (c Client) IsPublic() bool {
	return c.SecretHash == "" || c.AuthMethod == AuthMethodNone
}

// AllowsGrant reports whether the client is registered for the grant type.
func (c Client) AllowsGrant(grant string) bool {
	return slices.Contains(c.GrantTypes, grant)
}

// AllowsRedirect checks the redirect URI against the registered exact-match
// allow list.
func (c Client) AllowsRedirect(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsScopes reports whether every requested scope is within the client's
// registered allowance. Any scope outside the allowance fails the whole
// request; scopes are never silently narrowed.
func (c Client) AllowsScopes(requested []string) bool {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}
