package guard_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/microstore/microstore/pkg/guard"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "http://localhost:9000"

// jwksServer serves a JWKS document for the given signers and counts fetches.
func jwksServer(t *testing.T, keyset *jwtx.KeySet, fetches *int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/jwks", func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			*fetches++
		}
		httpx.WriteJSON(w, http.StatusOK, keyset.PublicJWKS())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSigner(t *testing.T, kid string) *jwtx.RS256Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerRS256(kid, key)
	require.NoError(t, err)
	return signer
}

func signToken(t *testing.T, signer *jwtx.RS256Signer, scopes []string, ttl time.Duration) string {
	t.Helper()
	claims := jwtx.NewAccessClaims(
		"user-1", scopes, []string{"USER"}, "alice",
		ttl, testIssuer, nil, time.Now().UTC(),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)
	return token
}

func protectedServer(t *testing.T, g *guard.Guard, scope string) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := guard.ClaimsFromContext(r.Context())
		require.True(t, ok)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"sub": claims.Subject})
	})

	srv := httptest.NewServer(httpx.Chain(handler,
		g.Authenticate(),
		guard.RequireScope(scope),
	))
	t.Cleanup(srv.Close)
	return srv
}

func TestGuardAllowsValidToken(t *testing.T) {
	signer := newSigner(t, "k1")
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	auth := jwksServer(t, keyset, nil)

	g, err := guard.New(guard.Options{AuthBaseURL: auth.URL, Issuer: testIssuer})
	require.NoError(t, err)

	srv := protectedServer(t, g, "inventory.read")

	token := signToken(t, signer, []string{"inventory.read"}, time.Minute)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuardRejectsMissingToken(t *testing.T) {
	signer := newSigner(t, "k1")
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	auth := jwksServer(t, keyset, nil)

	g, err := guard.New(guard.Options{AuthBaseURL: auth.URL, Issuer: testIssuer})
	require.NoError(t, err)

	srv := protectedServer(t, g, "inventory.read")

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}

func TestGuardRejectsExpiredToken(t *testing.T) {
	signer := newSigner(t, "k1")
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	auth := jwksServer(t, keyset, nil)

	g, err := guard.New(guard.Options{AuthBaseURL: auth.URL, Issuer: testIssuer})
	require.NoError(t, err)

	srv := protectedServer(t, g, "inventory.read")

	claims := jwtx.NewAccessClaims(
		"user-1", []string{"inventory.read"}, nil, "alice",
		time.Minute, testIssuer, nil, time.Now().UTC().Add(-time.Hour),
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGuardRejectsInsufficientScope(t *testing.T) {
	signer := newSigner(t, "k1")
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	auth := jwksServer(t, keyset, nil)

	g, err := guard.New(guard.Options{AuthBaseURL: auth.URL, Issuer: testIssuer})
	require.NoError(t, err)

	srv := protectedServer(t, g, "inventory.write")

	token := signToken(t, signer, []string{"inventory.read"}, time.Minute)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "insufficient_scope")
}

func TestRemoteKeySetRefetchesOnUnknownKid(t *testing.T) {
	signer1 := newSigner(t, "k1")
	signer2 := newSigner(t, "k2")

	// The served keyset initially only knows k1; k2 appears later, as it
	// would after a signing-key rotation on the auth service.
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer1))

	fetches := 0
	auth := jwksServer(t, keyset, &fetches)

	g, err := guard.New(guard.Options{AuthBaseURL: auth.URL, Issuer: testIssuer, KeyTTL: time.Hour})
	require.NoError(t, err)

	// Warm the cache with k1.
	token1 := signToken(t, signer1, nil, time.Minute)
	_, err = g.Verify(t.Context(), token1)
	require.NoError(t, err)
	require.Equal(t, 1, fetches)

	// Rotate: publish k2, then verify a k2-signed token. The kid miss must
	// trigger exactly one refetch.
	require.NoError(t, keyset.AddSigner(signer2))
	token2 := signToken(t, signer2, nil, time.Minute)
	_, err = g.Verify(t.Context(), token2)
	require.NoError(t, err)
	require.Equal(t, 2, fetches)

	// A token with a kid nobody knows refetches once and then fails.
	bogus := newSigner(t, "bogus")
	token3 := signToken(t, bogus, nil, time.Minute)
	_, err = g.Verify(t.Context(), token3)
	require.Error(t, err)
	require.Equal(t, 3, fetches)
}
