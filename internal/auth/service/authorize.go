package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/slogx"
)

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrInvalidRedirect = errors.New("invalid_redirect_uri")
	ErrLoginRequired   = errors.New("login_required")
	ErrConsentRequired = errors.New("consent_required")
)

// AuthorizeService encapsulates the OAuth2 authorization-code issuance flow:
// request validation, resource-owner login, consent, and code minting.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
}

// AuthorizeRequest captures the inputs of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// Username/password pair from the interactive login form.
	Username string
	Password string

	// ConsentGranted is set when the user approved the consent form for
	// this request's scopes.
	ConsentGranted bool
}

// AuthorizeCodeResponse contains the authorization code and redirect
// information used to build the redirect back to the client.
type AuthorizeCodeResponse struct {
	Code        string
	RedirectURI string
	State       string
}

// ValidatedAuthorize is the outcome of request validation, used by the HTTP
// layer to render the login and consent forms.
type ValidatedAuthorize struct {
	Client              domain.Client
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Validate checks the authorization request against the client registration
// before any user interaction happens.
//
// Redirect URI and client_id failures return errors that must NOT redirect;
// everything else is safe to report back to the registered redirect URI.
func (s *AuthorizeService) Validate(ctx context.Context, req AuthorizeRequest) (*ValidatedAuthorize, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, ErrInvalidClient
	}

	client, err := s.Store.Clients().GetClientByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if client.Disabled {
		return nil, ErrInvalidClient
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" || !client.AllowsRedirect(redirectURI) {
		return nil, ErrInvalidRedirect
	}

	if !strings.EqualFold(strings.TrimSpace(req.ResponseType), "code") {
		return nil, ErrInvalidRequest
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}

	scopes := dedupe(req.Scope)
	if len(scopes) == 0 {
		scopes = client.Scopes
	} else if !client.AllowsScopes(scopes) {
		return nil, ErrInvalidScope
	}

	challenge, method, err := validatePKCE(req.CodeChallenge, req.CodeChallengeMethod, client)
	if err != nil {
		return nil, err
	}

	return &ValidatedAuthorize{
		Client:              client,
		Scopes:              scopes,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
	}, nil
}

// IssueAuthorizationCode authenticates the resource owner, checks consent,
// and mints a single-use authorization code.
func (s *AuthorizeService) IssueAuthorizationCode(ctx context.Context, req AuthorizeRequest) (*AuthorizeCodeResponse, error) {
	log := slogx.FromContext(ctx)

	validated, err := s.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	client := validated.Client

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrLoginRequired
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		log.Warn("authorize: user lookup failed", "error", err)
		return nil, err
	}

	if cryptox.VerifySecret(req.Password, user.PasswordHash) != nil {
		return nil, ErrInvalidCredentials
	}

	if client.RequireConsent {
		granted, err := s.hasConsent(ctx, user.ID, client.ClientID, validated.Scopes)
		if err != nil {
			return nil, err
		}
		if !granted {
			if !req.ConsentGranted {
				return nil, ErrConsentRequired
			}
			if err := s.grantConsent(ctx, user.ID, client.ClientID, validated.Scopes); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now()
	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	record := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		UserID:              user.ID,
		ClientID:            client.ClientID,
		CodeHash:            cryptox.FingerprintToken(code),
		RedirectURI:         strings.TrimSpace(req.RedirectURI),
		Scopes:              validated.Scopes,
		CodeChallenge:       validated.CodeChallenge,
		CodeChallengeMethod: validated.CodeChallengeMethod,
		State:               domain.CodeStateIssued,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}

	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return nil, err
	}

	return &AuthorizeCodeResponse{
		Code:        code,
		RedirectURI: record.RedirectURI,
		State:       req.State,
	}, nil
}

// hasConsent reports whether a stored grant already covers the requested
// scopes. A superset grant satisfies a narrower request.
func (s *AuthorizeService) hasConsent(ctx context.Context, userID, clientID string, scopes []string) (bool, error) {
	consent, err := s.Store.Consents().GetConsent(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return consent.Covers(scopes), nil
}

// grantConsent widens the stored grant to the union of old and new scopes,
// so approving a narrow request never forgets an earlier broader approval.
func (s *AuthorizeService) grantConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	merged := scopes
	if existing, err := s.Store.Consents().GetConsent(ctx, userID, clientID); err == nil {
		merged = dedupe(append(existing.Scopes, scopes...))
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return s.Store.Consents().UpsertConsent(ctx, domain.Consent{
		ID:       idx.New().String(),
		UserID:   userID,
		ClientID: clientID,
		Scopes:   merged,
	})
}

func validatePKCE(challenge, method string, client domain.Client) (string, string, error) {
	trimmedChallenge := strings.TrimSpace(challenge)
	trimmedMethod := strings.TrimSpace(method)

	if trimmedChallenge == "" {
		if client.RequirePKCE || client.IsPublic() {
			return "", "", ErrInvalidRequest
		}
		// Confidential clients may omit PKCE; store empty values.
		return "", "", nil
	}

	normalizedMethod := trimmedMethod
	switch {
	case strings.EqualFold(trimmedMethod, "S256"):
		normalizedMethod = "S256"
	case strings.EqualFold(trimmedMethod, "plain"):
		normalizedMethod = "plain"
	case trimmedMethod == "":
		// Default to S256 when challenge provided but method omitted.
		normalizedMethod = "S256"
	default:
		return "", "", ErrInvalidRequest
	}

	return trimmedChallenge, normalizedMethod, nil
}
