package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// Only RSA keys are published here since every token is RS256-signed.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA"
	Use string `json:"use,omitempty"` // what we use it for: "sig"
	Alg string `json:"alg,omitempty"` // algorithm: "RS256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA parameters
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PublicKey parses the JWK back into a crypto public key.
func (j JWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nb)
	e := new(big.Int).SetBytes(eb).Int64()
	return &rsa.PublicKey{N: n, E: int(e)}, nil
}

// PEM converts the JWK to PEM format for use with tools like jwt.io.
func (j JWK) PEM() (string, error) {
	publicKey, err := j.PublicKey()
	if err != nil {
		return "", err
	}

	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	})), nil
}
