package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeValidate(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	seedSPAClient(t, ctx, st, false)

	svc := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	_, challenge := pkcePair()

	base := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "microstore-spa",
		RedirectURI:         "http://localhost:5173/callback",
		Scope:               []string{"inventory.read"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}

	t.Run("valid request", func(t *testing.T) {
		validated, err := svc.Validate(ctx, base)
		require.NoError(t, err)
		require.Equal(t, "microstore-spa", validated.Client.ClientID)
		require.Equal(t, []string{"inventory.read"}, validated.Scopes)
	})

	t.Run("empty scope defaults to the client allowance", func(t *testing.T) {
		req := base
		req.Scope = nil
		validated, err := svc.Validate(ctx, req)
		require.NoError(t, err)
		require.Equal(t, []string{"openid", "profile", "inventory.read", "inventory.write"},
			validated.Scopes)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := base
		req.ClientID = "nope"
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		req := base
		req.RedirectURI = "http://evil.example/callback"
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRedirect)
	})

	t.Run("unsupported response type", func(t *testing.T) {
		req := base
		req.ResponseType = "token"
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("scope outside allowance", func(t *testing.T) {
		req := base
		req.Scope = []string{"inventory.read", "admin"}
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("public client without pkce", func(t *testing.T) {
		req := base
		req.CodeChallenge = ""
		req.CodeChallengeMethod = ""
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown challenge method", func(t *testing.T) {
		req := base
		req.CodeChallengeMethod = "S512"
		_, err := svc.Validate(ctx, req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestIssueAuthorizationCodeLogin(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	seedSPAClient(t, ctx, st, false)
	seedUser(t, ctx, st, "alice", "password")

	svc := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	_, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "microstore-spa",
		RedirectURI:         "http://localhost:5173/callback",
		Scope:               []string{"inventory.read"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}

	t.Run("no credentials means login required", func(t *testing.T) {
		_, err := svc.IssueAuthorizationCode(ctx, req)
		require.ErrorIs(t, err, ErrLoginRequired)
	})

	t.Run("wrong password", func(t *testing.T) {
		r := req
		r.Username = "alice"
		r.Password = "wrong"
		_, err := svc.IssueAuthorizationCode(ctx, r)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		r := req
		r.Username = "mallory"
		r.Password = "password"
		_, err := svc.IssueAuthorizationCode(ctx, r)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestConsentFlow(t *testing.T) {
	ctx := t.Context()
	st := newTestStore(t)
	seedSPAClient(t, ctx, st, true)
	seedUser(t, ctx, st, "alice", "password")

	svc := &AuthorizeService{Store: st, CodeTTL: 5 * time.Minute}
	_, challenge := pkcePair()

	req := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "microstore-spa",
		RedirectURI:         "http://localhost:5173/callback",
		Scope:               []string{"inventory.read"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		Username:            "alice",
		Password:            "password",
	}

	// First visit has no stored grant, so the user must be prompted.
	_, err := svc.IssueAuthorizationCode(ctx, req)
	require.ErrorIs(t, err, ErrConsentRequired)

	// Approval stores the grant and issues a code in the same round trip.
	approved := req
	approved.ConsentGranted = true
	resp, err := svc.IssueAuthorizationCode(ctx, approved)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)

	// A later request within the stored grant skips the prompt.
	_, err = svc.IssueAuthorizationCode(ctx, req)
	require.NoError(t, err)

	// A wider scope than the stored grant prompts again.
	wider := req
	wider.Scope = []string{"inventory.read", "inventory.write"}
	_, err = svc.IssueAuthorizationCode(ctx, wider)
	require.ErrorIs(t, err, ErrConsentRequired)

	// Approving the wider request widens the grant to the union.
	wider.ConsentGranted = true
	_, err = svc.IssueAuthorizationCode(ctx, wider)
	require.NoError(t, err)

	narrow := req
	narrow.Scope = []string{"inventory.write"}
	_, err = svc.IssueAuthorizationCode(ctx, narrow)
	require.NoError(t, err)
}
