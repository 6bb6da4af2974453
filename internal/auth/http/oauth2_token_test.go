package http

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/service"
	"github.com/microstore/microstore/internal/auth/store/drivers/sqlite"
	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer      = "http://localhost:9000"
	testRedirectURI = "http://localhost:5173/callback"
)

// newAuthServer spins up a full auth router over a fresh database with one
// confidential client, one public PKCE client and one user.
func newAuthServer(t *testing.T) (*httptest.Server, *jwtx.KeyManager) {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "auth.db") + "?_busy_timeout=5000"
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer})
	require.NoError(t, err)

	secretHash, err := cryptox.HashSecret("secret")
	require.NoError(t, err)
	require.NoError(t, st.Clients().CreateClient(ctx, domain.Client{
		ID:             idx.New().String(),
		ClientID:       "orders-service",
		Name:           "Orders Service",
		SecretHash:     secretHash,
		AuthMethod:     domain.AuthMethodSecretBasic,
		GrantTypes:     []string{domain.GrantClientCredentials},
		Scopes:         []string{"inventory.read", "inventory.write"},
		AccessTokenTTL: 30 * time.Minute,
	}))

	require.NoError(t, st.Clients().CreateClient(ctx, domain.Client{
		ID:              idx.New().String(),
		ClientID:        "microstore-spa",
		Name:            "Microstore Web App",
		AuthMethod:      domain.AuthMethodNone,
		GrantTypes:      []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		RedirectURIs:    []string{testRedirectURI},
		Scopes:          []string{"openid", "profile", "inventory.read", "inventory.write"},
		RequirePKCE:     true,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}))

	passwordHash, err := cryptox.HashSecret("password")
	require.NoError(t, err)
	require.NoError(t, st.Users().CreateUser(ctx, domain.User{
		ID:           idx.New().String(),
		Username:     "alice",
		PasswordHash: passwordHash,
		Roles:        []string{"customer"},
	}))

	router := NewRouter(km.KeySet, "test", st, slog.New(slog.DiscardHandler))
	router.TokenService = &service.TokenService{Store: st, Signer: km.Signer, Issuer: testIssuer}
	router.AuthorizeService = &service.AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, km
}

func postToken(t *testing.T, srv *httptest.Server, form url.Values, basicUser, basicPass string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/oauth2/token",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func decodeToken(t *testing.T, body []byte) authsdk.TokenResponse {
	t.Helper()
	var tr authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	return tr
}

func decodeError(t *testing.T, body []byte) authsdk.ErrorResponse {
	t.Helper()
	var er authsdk.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	return er
}

func TestTokenEndpointClientCredentials(t *testing.T) {
	srv, km := newAuthServer(t)

	t.Run("basic auth", func(t *testing.T) {
		resp, body := postToken(t, srv, url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"inventory.read"},
		}, "orders-service", "secret")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		tr := decodeToken(t, body)
		require.Equal(t, "Bearer", tr.TokenType)
		require.Empty(t, tr.RefreshToken)
		require.Equal(t, 1800, tr.ExpiresIn)
		require.Equal(t, "inventory.read", tr.Scope)

		claims, err := km.Verifier.Verify(tr.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "orders-service", claims.Subject)
	})

	t.Run("form body credentials", func(t *testing.T) {
		resp, body := postToken(t, srv, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"orders-service"},
			"client_secret": {"secret"},
		}, "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "inventory.read inventory.write", decodeToken(t, body).Scope)
	})

	t.Run("wrong secret", func(t *testing.T) {
		resp, body := postToken(t, srv, url.Values{
			"grant_type": {"client_credentials"},
		}, "orders-service", "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", decodeError(t, body).Error)
	})

	t.Run("over-broad scope", func(t *testing.T) {
		resp, body := postToken(t, srv, url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"inventory.read admin"},
		}, "orders-service", "secret")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_scope", decodeError(t, body).Error)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		resp, body := postToken(t, srv, url.Values{
			"grant_type": {"password"},
			"client_id":  {"orders-service"},
		}, "", "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unsupported_grant_type", decodeError(t, body).Error)
	})

	t.Run("wrong content type", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/oauth2/token",
			strings.NewReader(`{"grant_type":"client_credentials"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthorizationCodeFlowOverHTTP(t *testing.T) {
	srv, km := newAuthServer(t)

	// Do not follow the redirect back to the SPA; the code is in Location.
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	verifier := "0123456789abcdef0123456789abcdef0123456789abcdef"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	form := url.Values{
		"response_type":         {"code"},
		"client_id":             {"microstore-spa"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"inventory.read inventory.write"},
		"state":                 {"abc123"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"username":              {"alice"},
		"password":              {"password"},
	}

	resp, err := client.Post(srv.URL+"/oauth2/authorize",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5173/callback", loc.Scheme+"://"+loc.Host+loc.Path)
	require.Equal(t, "abc123", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// Exchange the code.
	tokenResp, body := postToken(t, srv, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"microstore-spa"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {verifier},
	}, "", "")
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)

	tr := decodeToken(t, body)
	require.NotEmpty(t, tr.RefreshToken)

	claims, err := km.Verifier.Verify(tr.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)

	// Refresh rotates the opaque token.
	refreshResp, refreshBody := postToken(t, srv, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"microstore-spa"},
		"refresh_token": {tr.RefreshToken},
	}, "", "")
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	rotated := decodeToken(t, refreshBody)
	require.NotEmpty(t, rotated.RefreshToken)
	require.NotEqual(t, tr.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed code is invalid_grant.
	replayResp, replayBody := postToken(t, srv, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"microstore-spa"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {verifier},
	}, "", "")
	require.Equal(t, http.StatusBadRequest, replayResp.StatusCode)
	require.Equal(t, "invalid_grant", decodeError(t, replayBody).Error)
}

func TestAuthorizeGetRendersLogin(t *testing.T) {
	srv, _ := newAuthServer(t)

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"microstore-spa"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"inventory.read"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
	}
	resp, err := srv.Client().Get(srv.URL + "/oauth2/authorize?" + q.Encode())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), `name="username"`)
	require.Contains(t, string(body), `name="password"`)
}

func TestJWKSEndpoint(t *testing.T) {
	srv, km := newAuthServer(t)

	for _, path := range []string{"/oauth2/jwks", "/.well-known/jwks.json"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Cache-Control"), "max-age")

		var doc struct {
			Keys []jwtx.JWK `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(body, &doc))
		require.Len(t, doc.Keys, 1)
		require.Equal(t, km.Signer.KID(), doc.Keys[0].Kid)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newAuthServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var hr authsdk.HealthResponse
		require.NoError(t, json.Unmarshal(body, &hr))
		require.Equal(t, "ok", hr.Status)
	}
}
