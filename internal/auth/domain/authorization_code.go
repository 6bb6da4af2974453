package domain

import "time"

// Authorization code lifecycle states.
const (
	CodeStateIssued   = "issued"
	CodeStateConsumed = "consumed"
	CodeStateRevoked  = "revoked"
)

// AuthorizationCode represents an OAuth 2.0 authorization code issuance.
// Only the SHA-256 fingerprint of the opaque code is stored.
type AuthorizationCode struct {
	ID                  string
	UserID              string
	ClientID            string // public client identifier the code was issued to
	CodeHash            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string // "S256" or "plain"
	State               string // issued | consumed | revoked

	// FamilyID links the code to the refresh-token family minted when it was
	// consumed. A replayed code revokes that whole family.
	FamilyID string

	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
