package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/microstore/microstore/internal/auth/service"
	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

// TokenHandler serves POST /oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Handle the grant type
	grantType := r.Form.Get("grant_type")
	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	case "client_credentials":
		h.handleClientCredentialsGrant(w, r, r.Form)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

// clientCredentials resolves the client authentication from either the HTTP
// Basic Authorization header (client_secret_basic) or the form body. Basic
// credentials win when both are present.
func clientCredentials(r *http.Request, form url.Values) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return strings.TrimSpace(form.Get("client_id")), form.Get("client_secret")
}

func (h *TokenHandler) handleAuthorizationCodeGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code := strings.TrimSpace(form.Get("code"))
	redirectURI := strings.TrimSpace(form.Get("redirect_uri"))
	codeVerifier := strings.TrimSpace(form.Get("code_verifier"))
	clientID, clientSecret := clientCredentials(r, form)

	if code == "" || redirectURI == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeAuthorizationCode(ctx, clientID, clientSecret, code, redirectURI, codeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrUnauthorizedClient):
			authsdk.ErrUnauthorizedClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			authsdk.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidScope):
			authsdk.ErrInvalidScope.WriteError(w)
		default:
			log.Error("authorization_code grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair.AccessToken, pair.RefreshToken, int(pair.ExpiresIn.Seconds()), pair.Scope)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	scopeStr := strings.TrimSpace(form.Get("scope"))
	requested := httpx.ParseSpaceDelimitedFields(scopeStr)
	clientID, clientSecret := clientCredentials(r, form)

	if refresh == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefreshToken(ctx, clientID, clientSecret, refresh, requested)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh):
			authsdk.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrUnauthorizedClient):
			authsdk.ErrUnauthorizedClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidScope):
			authsdk.ErrInvalidScope.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair.AccessToken, pair.RefreshToken, int(pair.ExpiresIn.Seconds()), pair.Scope)
}

func (h *TokenHandler) handleClientCredentialsGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	scopeStr := strings.TrimSpace(form.Get("scope"))
	requested := httpx.ParseSpaceDelimitedFields(scopeStr)
	clientID, clientSecret := clientCredentials(r, form)

	// Both client_id and client_secret are required for client_credentials grant
	if clientID == "" || clientSecret == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeClientCredentials(ctx, clientID, clientSecret, requested)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrUnauthorizedClient):
			authsdk.ErrUnauthorizedClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidScope):
			authsdk.ErrInvalidScope.WriteError(w)
		default:
			log.Error("client_credentials grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	// NOTE: refresh_token is omitted when empty (as per OAuth2 spec)
	writeTokenResponse(w, pair.AccessToken, "", int(pair.ExpiresIn.Seconds()), pair.Scope)
}

func writeTokenResponse(w http.ResponseWriter, access, refresh string, expiresIn int, scope string) {
	response := authsdk.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		Scope:        strings.TrimSpace(scope),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
