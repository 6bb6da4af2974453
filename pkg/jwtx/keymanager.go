package jwtx

import (
	"fmt"

	"github.com/microstore/microstore/pkg/cryptox"
)

// KeyManager wires together the signing key, the verifier, and the KeySet
// for JWKS publishing. Keys are ephemeral: generated at startup, held only
// in memory, so every issued token dies with the process. That is the
// intended behavior for this system, not an accident.
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Issuer is the issuer claim (iss) that will be stamped into and
	// validated on tokens. Required.
	Issuer string

	// Audience is the list of audience values (aud) that will be validated.
	// Empty slice means no audience validation.
	Audience []string

	// RSABits specifies the RSA key size. Defaults to 2048 if not specified.
	RSABits int
}

// NewEphemeralKeyManager creates a KeyManager with a freshly generated
// RSA key and a random kid.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	bits := opts.RSABits
	if bits == 0 {
		bits = 2048
	}

	key, err := cryptox.GenerateRSAKey(bits)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to generate signing key: %w", err)
	}

	kid, err := generateRandomKeyID()
	if err != nil {
		return nil, err
	}

	signer, err := NewSignerRS256(kid, key)
	if err != nil {
		return nil, err
	}

	keyset := NewKeySet()
	if err := keyset.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("jwtx: failed to add signer to keyset: %w", err)
	}

	return &KeyManager{
		Signer:   signer,
		Verifier: NewCommonRS256(keyset, opts.Issuer, opts.Audience),
		KeySet:   keyset,
	}, nil
}

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// generateRandomKeyID creates a random key identifier using cryptographic
// entropy. Format: "microstore-{random-token}".
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to generate random key ID: %w", err)
	}
	return fmt.Sprintf("microstore-%s", token), nil
}
