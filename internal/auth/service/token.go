package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/jwtx"
	"github.com/microstore/microstore/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrUnauthorizedClient = errors.New("unauthorized_client")
)

// TokenService implements the token endpoint grants. Token lifetimes come
// from the client registration, not from global config, so the SPA and the
// machine clients can carry different TTLs.
type TokenService struct {
	Store  store.Store
	Signer jwtx.Signer
	Issuer string
}

// ExchangeClientCredentials implements the OAuth2 client_credentials grant.
//
// This grant is for machine-to-machine authentication where a client
// authenticates as itself, not on behalf of a user. The client must be
// confidential.
//
// Scope handling is strict: any requested scope outside the client's
// registered allowance fails the whole request with invalid_scope. Scopes
// are never silently narrowed. An empty request grants all client scopes.
func (s *TokenService) ExchangeClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	requestedScopes []string,
) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	client, err := s.loadClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !client.AllowsGrant(domain.GrantClientCredentials) {
		return nil, ErrUnauthorizedClient
	}

	if client.SecretHash == "" {
		l.Warn("client_credentials grant attempted with public client", "client_id", clientID)
		return nil, ErrInvalidClient
	}
	if err := cryptox.VerifySecret(clientSecret, client.SecretHash); err != nil {
		l.Info("client secret verification failed", "client_id", clientID)
		return nil, ErrInvalidClient
	}

	effective := dedupe(requestedScopes)
	if len(effective) == 0 {
		effective = client.Scopes
	} else if !client.AllowsScopes(effective) {
		return nil, ErrInvalidScope
	}

	// The client is the subject; no user claims are stamped.
	claims := jwtx.NewAccessClaims(
		client.ClientID,
		effective,
		nil, // no roles
		"",  // no username
		client.AccessTokenTTL,
		s.Issuer,
		nil,
		now,
	)

	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		l.Error("failed to sign access token", "error", err)
		return nil, err
	}

	// No refresh token: the client can always re-authenticate.
	return &domain.TokenPair{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   client.AccessTokenTTL,
		Scope:       strings.Join(effective, " "),
	}, nil
}

// ExchangeAuthorizationCode implements the OAuth2 authorization_code grant.
//
// It validates client authentication, verifies the single-use code, enforces
// PKCE, and issues an access token plus a refresh token in a fresh rotation
// family. A replayed code revokes the family minted from its first use.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	client, err := s.loadClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}

	// Confidential clients must authenticate.
	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			l.Info("authorization_code grant client authentication failed", "client_id", clientID)
			return nil, ErrInvalidClient
		}
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidGrant
	}

	codeHash := cryptox.FingerprintToken(code)

	var (
		result *domain.TokenPair

		// Family to revoke after the transaction. Revocations triggered by a
		// failing exchange cannot run inside it: the error return rolls the
		// transaction back, which would undo the revocation too.
		revokeFamilyID string
	)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if authCode.ClientID != client.ClientID {
			return ErrInvalidGrant
		}

		// Replay of a consumed code: revoke everything minted from it.
		if authCode.State == domain.CodeStateConsumed {
			l.Warn("authorization code replay detected", "client_id", clientID)
			revokeFamilyID = authCode.FamilyID
			return ErrInvalidGrant
		}
		if authCode.State != domain.CodeStateIssued || now.After(authCode.ExpiresAt) {
			return ErrInvalidGrant
		}
		if authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if !verifyCodeVerifier(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier) {
			return ErrInvalidGrant
		}

		user, err := tx.Users().GetUserByID(ctx, authCode.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		familyID := idx.New().String()

		if err := tx.AuthorizationCodes().ConsumeAuthorizationCode(ctx, authCode.ID, familyID, now); err != nil {
			if errors.Is(err, store.ErrStateConflict) {
				// Lost a concurrent exchange of the same code.
				return ErrInvalidGrant
			}
			return err
		}

		accessToken, err := s.signUserAccess(user, client, authCode.Scopes, now)
		if err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   client.AccessTokenTTL,
			Scope:       strings.Join(authCode.Scopes, " "),
		}

		if !client.AllowsGrant(domain.GrantRefreshToken) {
			return nil
		}

		refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		refresh := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    user.ID,
			ClientID:  client.ClientID,
			TokenHash: cryptox.FingerprintToken(refreshOpaque),
			FamilyID:  familyID,
			Scopes:    authCode.Scopes,
			State:     domain.RefreshStateActive,
			ExpiresAt: now.Add(client.RefreshTokenTTL),
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, refresh); err != nil {
			return err
		}

		result.RefreshToken = refreshOpaque
		return nil
	})
	if err != nil {
		s.revokeFamily(ctx, revokeFamilyID)
		return nil, err
	}

	return result, nil
}

// ExchangeRefreshToken implements the OAuth2 refresh_token grant with
// rotation and family revocation.
//
// Presenting a rotated or revoked token is treated as theft evidence: the
// whole family is revoked before the request fails. Scopes may only narrow
// relative to the presented token.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshOpaque string,
	requestedScopes []string,
) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	client, err := s.loadClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !client.AllowsGrant(domain.GrantRefreshToken) {
		return nil, ErrUnauthorizedClient
	}

	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			return nil, ErrInvalidClient
		}
	}

	fp := cryptox.FingerprintToken(refreshOpaque)

	var (
		result *domain.TokenPair

		// Revocation on reuse commits after the failed transaction; inside it
		// the error return would roll the revocation back with everything else.
		revokeFamilyID string
	)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if rt.ClientID != client.ClientID {
			return ErrInvalidRefresh
		}

		// A rotated token coming back means the opaque value leaked or the
		// client is replaying. Either way the whole chain is burned.
		if rt.State != domain.RefreshStateActive {
			l.Warn("refresh token reuse detected, revoking family",
				"client_id", clientID, "family_id", rt.FamilyID)
			revokeFamilyID = rt.FamilyID
			return ErrInvalidRefresh
		}
		if now.After(rt.ExpiresAt) {
			return ErrInvalidRefresh
		}

		// Narrow-only: the new grant cannot exceed the presented token.
		effective := dedupe(requestedScopes)
		if len(effective) == 0 {
			effective = rt.Scopes
		} else if !subsetOf(effective, rt.Scopes) {
			return ErrInvalidScope
		}

		user, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			return err
		}

		accessToken, err := s.signUserAccess(user, client, effective, now)
		if err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   client.AccessTokenTTL,
			Scope:       strings.Join(effective, " "),
		}

		if client.ReuseRefreshTokens {
			// Rotation disabled for this client; hand the same token back.
			result.RefreshToken = refreshOpaque
			return nil
		}

		if err := tx.RefreshTokens().MarkRotated(ctx, rt.ID); err != nil {
			if errors.Is(err, store.ErrStateConflict) {
				// Lost a concurrent rotation race on the same token.
				revokeFamilyID = rt.FamilyID
				return ErrInvalidRefresh
			}
			return err
		}

		newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		newRT := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    rt.UserID,
			ClientID:  client.ClientID,
			TokenHash: cryptox.FingerprintToken(newOpaque),
			FamilyID:  rt.FamilyID, // same family across the whole chain
			Scopes:    effective,
			State:     domain.RefreshStateActive,
			ExpiresAt: now.Add(client.RefreshTokenTTL),
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, newRT); err != nil {
			return err
		}

		result.RefreshToken = newOpaque
		return nil
	})
	if err != nil {
		s.revokeFamily(ctx, revokeFamilyID)
		return nil, err
	}

	return result, nil
}

// revokeFamily commits a family revocation on its own connection. It runs
// after a failed exchange whose transaction has already rolled back; the
// revocation must still become visible to the very next request.
func (s *TokenService) revokeFamily(ctx context.Context, familyID string) {
	if familyID == "" {
		return
	}
	if err := s.Store.RefreshTokens().RevokeFamily(ctx, familyID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke refresh token family",
			"family_id", familyID, "error", err)
	}
}

func (s *TokenService) loadClient(ctx context.Context, clientID string) (domain.Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return domain.Client{}, ErrInvalidClient
	}
	client, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	if client.Disabled {
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

func (s *TokenService) signUserAccess(
	u domain.User,
	client domain.Client,
	scopes []string,
	now time.Time,
) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,
		scopes,
		u.Roles,
		u.Username,
		client.AccessTokenTTL,
		s.Issuer,
		nil,
		now,
	)
	return s.Signer.Sign(claims)
}

// subsetOf reports whether every element of a is present in b.
func subsetOf(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func verifyCodeVerifier(challenge, method, verifier string) bool {
	challenge = strings.TrimSpace(challenge)
	if challenge == "" {
		// No PKCE challenge stored; accept regardless of verifier.
		return true
	}

	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return false
	}

	method = strings.TrimSpace(method)
	switch {
	case strings.EqualFold(method, "plain"):
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case method == "" || strings.EqualFold(method, "S256"):
		sum := sha256.Sum256([]byte(verifier))
		expected := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
	default:
		return false
	}
}
