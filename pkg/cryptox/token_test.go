package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestMustGenerateToken_Panics(t *testing.T) {
	require.Panics(t, func() {
		MustGenerateToken(0)
	})
}

func TestFingerprintToken(t *testing.T) {
	fp1a := FingerprintToken("test-token-1")
	fp1b := FingerprintToken("test-token-1")
	fp2 := FingerprintToken("test-token-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2, "different tokens should have different fingerprints")
	require.Len(t, fp1a, 43, "SHA-256 base64url should be 43 chars")
}
