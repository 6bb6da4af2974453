package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microstore/microstore/pkg/jwtx"
)

// SDKClient is a client for the authorization server. It covers the token
// endpoint grants and the JWKS document.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new authorization server client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ClientCredentialsGrant requests an access token using the OAuth2
// client_credentials grant. This grant is for machine-to-machine calls where
// a client authenticates as itself, not on behalf of a user. No refresh
// token is issued; clients simply re-authenticate when the token expires.
func (c *SDKClient) ClientCredentialsGrant(
	ctx context.Context,
	clientID, clientSecret string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestToken(ctx, data)
}

// AuthorizationCodeGrant exchanges an authorization code for tokens.
// verifier is the PKCE code_verifier the client generated before the
// authorization request; pass "" for clients not using PKCE.
func (c *SDKClient) AuthorizationCodeGrant(
	ctx context.Context,
	clientID, code, redirectURI, verifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {clientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if verifier != "" {
		data.Set("code_verifier", verifier)
	}

	return c.requestToken(ctx, data)
}

// RefreshGrant requests new tokens using a refresh token.
func (c *SDKClient) RefreshGrant(
	ctx context.Context,
	clientID, refreshToken string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}

	return c.requestToken(ctx, data)
}

// FetchJWKS retrieves the authorization server's public signing keys.
func (c *SDKClient) FetchJWKS(ctx context.Context) (jwtx.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/oauth2/jwks", nil)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jwtx.JWKS{}, fmt.Errorf("jwks request failed with status %d", resp.StatusCode)
	}

	var jwks jwtx.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return jwtx.JWKS{}, fmt.Errorf("failed to decode jwks: %w", err)
	}

	return jwks, nil
}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/oauth2/token",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := parseErrorResponse(resp, body); err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tokenResp, nil
}
