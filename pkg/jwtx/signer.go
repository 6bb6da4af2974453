package jwtx

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// RS256Signer implements the Signer interface using RSA SHA-256.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
	pub *rsa.PublicKey
	alg string
}

// NewSignerRS256 creates an RS256 signer from an RSA private key.
func NewSignerRS256(kid string, key *rsa.PrivateKey) (*RS256Signer, error) {
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	return &RS256Signer{
		kid: kid,
		key: key,
		pub: &key.PublicKey,
		alg: jwt.SigningMethodRS256.Alg(),
	}, nil
}

func (s *RS256Signer) Alg() string { return s.alg }
func (s *RS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *RS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns a JWK for inclusion in a JWKS. This is what you'll
// publish so others can verify your tokens.
func (s *RS256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", s.alg, s.pub)
}

// Validate does a quick sanity check to make sure we actually have keys.
func (s *RS256Signer) Validate() error {
	if s.key == nil || s.pub == nil {
		return errors.New("jwtx: nil RSA key")
	}
	return nil
}
