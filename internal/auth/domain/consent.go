package domain

import (
	"slices"
	"time"
)

// Consent records which scopes a user has approved for a client. A stored
// grant covering a superset of the requested scopes satisfies a new request
// without re-prompting.
type Consent struct {
	ID        string
	UserID    string
	ClientID  string // public client identifier
	Scopes    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether the stored grant includes every requested scope.
func (c Consent) Covers(requested []string) bool {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}
