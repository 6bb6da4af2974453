package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/internal/auth/store/drivers/sqlite"
	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "http://localhost:9000"

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "auth.db") + "?_busy_timeout=5000"
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestKeys(t *testing.T) *jwtx.KeyManager {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer})
	require.NoError(t, err)
	return km
}

func seedMachineClient(t *testing.T, ctx context.Context, st store.Store, secret string) domain.Client {
	t.Helper()

	hash, err := cryptox.HashSecret(secret)
	require.NoError(t, err)

	client := domain.Client{
		ID:             idx.New().String(),
		ClientID:       "orders-service",
		Name:           "Orders Service",
		SecretHash:     hash,
		AuthMethod:     domain.AuthMethodSecretBasic,
		GrantTypes:     []string{domain.GrantClientCredentials},
		Scopes:         []string{"inventory.read", "inventory.write"},
		AccessTokenTTL: 30 * time.Minute,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, client))
	return client
}

func seedSPAClient(t *testing.T, ctx context.Context, st store.Store, requireConsent bool) domain.Client {
	t.Helper()

	client := domain.Client{
		ID:              idx.New().String(),
		ClientID:        "microstore-spa",
		Name:            "Microstore Web App",
		AuthMethod:      domain.AuthMethodNone,
		GrantTypes:      []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		RedirectURIs:    []string{"http://localhost:5173/callback"},
		Scopes:          []string{"openid", "profile", "inventory.read", "inventory.write"},
		RequireConsent:  requireConsent,
		RequirePKCE:     true,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, client))
	return client
}

func seedUser(t *testing.T, ctx context.Context, st store.Store, username, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashSecret(password)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Roles:        []string{"customer"},
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))
	return user
}

// pkcePair returns a code_verifier and its S256 code_challenge.
func pkcePair() (verifier, challenge string) {
	verifier = "0123456789abcdef0123456789abcdef0123456789abcdef"
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge
}

// mintCode drives the authorize flow end to end and returns the code.
func mintCode(t *testing.T, ctx context.Context, svc *AuthorizeService, challenge string, consent bool) string {
	t.Helper()

	resp, err := svc.IssueAuthorizationCode(ctx, AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "microstore-spa",
		RedirectURI:         "http://localhost:5173/callback",
		Scope:               []string{"inventory.read", "inventory.write"},
		State:               "xyz",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Username:            "alice",
		Password:            "password",
		ConsentGranted:      consent,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	require.Equal(t, "xyz", resp.State)
	return resp.Code
}

func TestClientCredentialsGrant(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	km := newTestKeys(t)
	seedMachineClient(t, ctx, st, "secret")

	svc := &TokenService{Store: st, Signer: km.Signer, Issuer: testIssuer}

	t.Run("issues token with requested scopes", func(t *testing.T) {
		pair, err := svc.ExchangeClientCredentials(ctx, "orders-service", "secret",
			[]string{"inventory.read", "inventory.write"})
		require.NoError(t, err)
		require.Equal(t, "Bearer", pair.TokenType)
		require.Empty(t, pair.RefreshToken)
		require.Equal(t, 30*time.Minute, pair.ExpiresIn)

		claims, err := km.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "orders-service", claims.Subject)
		require.Equal(t, testIssuer, claims.Issuer)
		require.Equal(t, "inventory.read inventory.write", claims.Scope)
		require.Empty(t, claims.Roles)
		require.Empty(t, claims.Username)
	})

	t.Run("empty scope request grants all client scopes", func(t *testing.T) {
		pair, err := svc.ExchangeClientCredentials(ctx, "orders-service", "secret", nil)
		require.NoError(t, err)
		require.Equal(t, "inventory.read inventory.write", pair.Scope)
	})

	t.Run("scope outside allowance is rejected, never narrowed", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, "orders-service", "secret",
			[]string{"inventory.read", "admin.write"})
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, "orders-service", "nope", nil)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, "who-dis", "secret", nil)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("grant not allowed for client", func(t *testing.T) {
		seedSPAClient(t, ctx, st, false)
		_, err := svc.ExchangeClientCredentials(ctx, "microstore-spa", "secret", nil)
		require.ErrorIs(t, err, ErrUnauthorizedClient)
	})
}

func TestAuthorizationCodeExchange(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	km := newTestKeys(t)
	seedSPAClient(t, ctx, st, false)
	seedUser(t, ctx, st, "alice", "password")

	authorize := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	tokens := &TokenService{Store: st, Signer: km.Signer, Issuer: testIssuer}

	verifier, challenge := pkcePair()

	t.Run("code exchanges once for user token plus refresh", func(t *testing.T) {
		code := mintCode(t, ctx, authorize, challenge, false)

		pair, err := tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/callback", verifier)
		require.NoError(t, err)
		require.NotEmpty(t, pair.RefreshToken)

		claims, err := km.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Username)
		require.Equal(t, []string{"customer"}, claims.Roles)
		require.True(t, claims.HasScope("inventory.read"))
	})

	t.Run("wrong code verifier", func(t *testing.T) {
		code := mintCode(t, ctx, authorize, challenge, false)
		_, err := tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/callback", "not-the-verifier-that-was-used")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		code := mintCode(t, ctx, authorize, challenge, false)
		_, err := tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/other", verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("replayed code revokes the family it minted", func(t *testing.T) {
		code := mintCode(t, ctx, authorize, challenge, false)

		pair, err := tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/callback", verifier)
		require.NoError(t, err)

		_, err = tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/callback", verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)

		// The refresh token issued from the first exchange is burned.
		_, err = tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", pair.RefreshToken, nil)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

func TestRefreshRotation(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	km := newTestKeys(t)
	seedSPAClient(t, ctx, st, false)
	seedUser(t, ctx, st, "alice", "password")

	authorize := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	tokens := &TokenService{Store: st, Signer: km.Signer, Issuer: testIssuer}

	verifier, challenge := pkcePair()

	obtainRefresh := func(t *testing.T) string {
		code := mintCode(t, ctx, authorize, challenge, false)
		pair, err := tokens.ExchangeAuthorizationCode(ctx, "microstore-spa", "",
			code, "http://localhost:5173/callback", verifier)
		require.NoError(t, err)
		return pair.RefreshToken
	}

	t.Run("rotation yields a new token and burns the old on reuse", func(t *testing.T) {
		first := obtainRefresh(t)

		pair, err := tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", first, nil)
		require.NoError(t, err)
		require.NotEmpty(t, pair.RefreshToken)
		require.NotEqual(t, first, pair.RefreshToken)

		// Replaying the rotated token revokes the whole family.
		_, err = tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", first, nil)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		// Including the freshly rotated successor.
		_, err = tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", pair.RefreshToken, nil)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("scopes narrow but never widen", func(t *testing.T) {
		refresh := obtainRefresh(t)

		pair, err := tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", refresh,
			[]string{"inventory.read"})
		require.NoError(t, err)
		require.Equal(t, "inventory.read", pair.Scope)

		// The narrowed grant cannot be re-widened later in the chain.
		_, err = tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", pair.RefreshToken,
			[]string{"inventory.read", "inventory.write"})
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		_, err := tokens.ExchangeRefreshToken(ctx, "microstore-spa", "", "bogus", nil)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

func TestRefreshReuseAllowedClient(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	km := newTestKeys(t)
	seedUser(t, ctx, st, "alice", "password")

	client := domain.Client{
		ID:                 idx.New().String(),
		ClientID:           "legacy-app",
		Name:               "Legacy App",
		AuthMethod:         domain.AuthMethodNone,
		GrantTypes:         []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		RedirectURIs:       []string{"http://localhost:5173/callback"},
		Scopes:             []string{"inventory.read"},
		RequirePKCE:        true,
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		ReuseRefreshTokens: true,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, client))

	authorize := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	tokens := &TokenService{Store: st, Signer: km.Signer, Issuer: testIssuer}

	verifier, challenge := pkcePair()
	resp, err := authorize.IssueAuthorizationCode(ctx, AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "legacy-app",
		RedirectURI:         "http://localhost:5173/callback",
		Scope:               []string{"inventory.read"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Username:            "alice",
		Password:            "password",
	})
	require.NoError(t, err)

	pair, err := tokens.ExchangeAuthorizationCode(ctx, "legacy-app", "",
		resp.Code, "http://localhost:5173/callback", verifier)
	require.NoError(t, err)

	// Rotation disabled: the same opaque token comes back and stays valid.
	next, err := tokens.ExchangeRefreshToken(ctx, "legacy-app", "", pair.RefreshToken, nil)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, next.RefreshToken)

	again, err := tokens.ExchangeRefreshToken(ctx, "legacy-app", "", pair.RefreshToken, nil)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, again.RefreshToken)
}
