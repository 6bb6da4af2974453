package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// GenerateRSAKey generates a new RSA private key with the specified bit size.
// Common bit sizes are 2048, 3072, or 4096 bits.
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("cryptox: RSA key size must be at least 2048 bits")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}
	return privateKey, nil
}
