package domain

import "time"

// Refresh token lifecycle states.
const (
	RefreshStateActive  = "active"
	RefreshStateRotated = "rotated"
	RefreshStateRevoked = "revoked"
)

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
	Scope        string        `json:"scope,omitempty"`      // space-delimited
}

// RefreshToken models the stored refresh token record. Only the SHA-256
// fingerprint of the opaque value is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	ClientID  string // public client identifier
	TokenHash string // deterministic fingerprint (base64url SHA-256)

	// FamilyID groups every token in a rotation chain. Reuse of a rotated
	// member revokes the entire family.
	FamilyID string

	Scopes    []string
	State     string // active | rotated | revoked
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
