package authsdk

import (
	"context"
	"sync"
	"time"
)

// expiryBuffer is subtracted from the token lifetime so a token is refreshed
// before it actually expires mid-request.
const expiryBuffer = 30 * time.Second

// TokenSource yields access tokens for service-to-service calls using the
// client_credentials grant. Tokens are cached until shortly before expiry
// and fetched again on demand, so callers can invoke Token on every request.
type TokenSource struct {
	client       *SDKClient
	clientID     string
	clientSecret string
	scopes       []string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewTokenSource creates a TokenSource for the given confidential client.
func NewTokenSource(client *SDKClient, clientID, clientSecret string, scopes []string) *TokenSource {
	return &TokenSource{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// token is missing or about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && time.Now().Before(ts.expiresAt) {
		return ts.accessToken, nil
	}

	resp, err := ts.client.ClientCredentialsGrant(ctx, ts.clientID, ts.clientSecret, ts.scopes)
	if err != nil {
		return "", err
	}

	ts.accessToken = resp.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Add(-expiryBuffer)

	return ts.accessToken, nil
}

// Invalidate drops the cached token so the next Token call fetches a new
// one. Callers use this after a 401 from a resource server.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.accessToken = ""
	ts.expiresAt = time.Time{}
}
