package jwtx

import (
	"errors"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// RS256Adapter a Verifier wrapper for RS256.
type RS256Adapter struct{ *RS256Verifier }

func (a RS256Adapter) Verify(token string) (Claims, error) {
	c, err := a.RS256Verifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonRS256 returns a Verifier using the RS256 implementation wrapped
// in the common interface.
func NewCommonRS256(keys *KeySet, issuer string, audience []string) Verifier {
	return RS256Adapter{NewVerifierRS256(keys, issuer, audience)}
}
