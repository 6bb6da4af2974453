package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecret_RoundTrip(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifySecret("correct horse battery staple", hash))
	require.ErrorIs(t, VerifySecret("wrong", hash), ErrMismatch)
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	h1, err := HashSecret("secret")
	require.NoError(t, err)
	h2, err := HashSecret("secret")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2, "each hash should use a fresh salt")
}

func TestVerifySecret_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not phc", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret("secret", tt.hash)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrMismatch)
		})
	}
}
