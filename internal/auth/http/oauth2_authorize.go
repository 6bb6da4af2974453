package http

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/microstore/microstore/internal/auth/service"
	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/httpx"
	"github.com/microstore/microstore/pkg/slogx"
)

// AuthorizeHandler processes OAuth2 authorization requests (authorization
// code flow). GET renders the login form; POST authenticates the resource
// owner, collects consent when required, and redirects back to the client
// with the authorization code.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
  <h1>Sign in to {{.ClientName}}</h1>
  {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
  <form method="post" action="/oauth2/authorize">
    {{range $k, $v := .Hidden}}<input type="hidden" name="{{$k}}" value="{{$v}}">{{end}}
    <label>Username <input type="text" name="username" autocomplete="username"></label>
    <label>Password <input type="password" name="password" autocomplete="current-password"></label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Authorize {{.ClientName}}</title></head>
<body>
  <h1>{{.ClientName}} is requesting access</h1>
  <ul>
    {{range .Scopes}}<li>{{.}}</li>{{end}}
  </ul>
  <form method="post" action="/oauth2/authorize">
    {{range $k, $v := .Hidden}}<input type="hidden" name="{{$k}}" value="{{$v}}">{{end}}
    <button type="submit" name="consent" value="approve">Allow</button>
    <button type="submit" name="consent" value="deny">Deny</button>
  </form>
</body>
</html>`))

type authorizePage struct {
	ClientName string
	Scopes     []string
	Error      string
	Hidden     map[string]string
}

// HandleGet validates the authorization request and renders the login form.
// Invalid client_id or redirect_uri never redirects back to the client.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := buildAuthorizeRequest(nil, r.URL.Query())
	validated, err := h.AuthorizeService.Validate(ctx, req)
	if err != nil {
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	h.renderLogin(w, r, validated.Client.Name, req, "")
}

// HandlePost processes the submitted login or consent form.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	req := buildAuthorizeRequest(r.Form, r.URL.Query())
	req.Username = strings.TrimSpace(r.Form.Get("username"))
	req.Password = r.Form.Get("password")

	switch r.Form.Get("consent") {
	case "approve":
		req.ConsentGranted = true
	case "deny":
		h.redirectError(w, r, req, "access_denied", "the resource owner denied the request")
		return
	}

	resp, err := h.AuthorizeService.IssueAuthorizationCode(ctx, req)
	if err != nil {
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	redirectURL, err := buildAuthorizeRedirect(resp.RedirectURI, resp.Code, resp.State)
	if err != nil {
		log.Error("failed to build redirect URL", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func buildAuthorizeRequest(primary, secondary url.Values) service.AuthorizeRequest {
	pick := func(key string) string {
		if primary != nil {
			if v := strings.TrimSpace(primary.Get(key)); v != "" {
				return v
			}
		}
		if secondary != nil {
			return strings.TrimSpace(secondary.Get(key))
		}
		return ""
	}

	scopeStr := pick("scope")

	return service.AuthorizeRequest{
		ResponseType:        pick("response_type"),
		ClientID:            pick("client_id"),
		RedirectURI:         pick("redirect_uri"),
		Scope:               httpx.ParseSpaceDelimitedFields(scopeStr),
		State:               pick("state"),
		CodeChallenge:       pick("code_challenge"),
		CodeChallengeMethod: pick("code_challenge_method"),
	}
}

func (h *AuthorizeHandler) handleAuthorizeError(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest, err error) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// As per RFC 6749 Section 3.1.2.3, an invalid client_id or redirect_uri
	// MUST NOT redirect the user-agent back to the client. An error page is
	// shown to the user instead.
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			"invalid_request",
			"The 'client_id' parameter is missing, unknown, or disabled.",
		).WriteError(w)
		return
	case errors.Is(err, service.ErrInvalidRedirect):
		log.Debug("authorize rejected redirect_uri",
			"client_id", req.ClientID, "redirect_uri", req.RedirectURI)
		authsdk.NewOAuth2Error(
			http.StatusBadRequest,
			"invalid_request",
			"The 'redirect_uri' parameter is invalid or does not match a registered URI for the client.",
		).WriteError(w)
		return
	}

	// Login and consent failures keep the user on the interaction pages.
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		h.renderLoginForRequest(w, r, req, "")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		h.renderLoginForRequest(w, r, req, "Invalid username or password.")
		return
	case errors.Is(err, service.ErrConsentRequired):
		h.renderConsentForRequest(w, r, req)
		return
	}

	// Remaining validation errors are safe to report to the registered
	// redirect URI per RFC 6749 Section 4.1.2.1.
	switch {
	case errors.Is(err, service.ErrUnauthorizedClient):
		h.redirectError(w, r, req, "unauthorized_client", "the client is not allowed to use the authorization code grant")
	case errors.Is(err, service.ErrInvalidScope):
		h.redirectError(w, r, req, "invalid_scope", "the requested scope exceeds what the client is allowed")
	case errors.Is(err, service.ErrInvalidRequest):
		h.redirectError(w, r, req, "invalid_request", "the request is missing a required parameter or is otherwise malformed")
	default:
		log.Error("authorize request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func (h *AuthorizeHandler) renderLoginForRequest(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest, message string) {
	validated, err := h.AuthorizeService.Validate(r.Context(), req)
	if err != nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}
	h.renderLogin(w, r, validated.Client.Name, req, message)
}

func (h *AuthorizeHandler) renderConsentForRequest(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest) {
	validated, err := h.AuthorizeService.Validate(r.Context(), req)
	if err != nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	page := authorizePage{
		ClientName: validated.Client.Name,
		Scopes:     validated.Scopes,
		Hidden:     hiddenFields(req),
	}
	// Credentials ride along so consent approval re-authenticates in one
	// round trip; the page is served over the same TLS channel as login.
	page.Hidden["username"] = req.Username
	page.Hidden["password"] = req.Password

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	httpx.NoCache(w)
	if err := consentTemplate.Execute(w, page); err != nil {
		slogx.FromContext(r.Context()).Error("failed to render consent page", "error", err)
	}
}

func (h *AuthorizeHandler) renderLogin(w http.ResponseWriter, r *http.Request, clientName string, req service.AuthorizeRequest, message string) {
	page := authorizePage{
		ClientName: clientName,
		Error:      message,
		Hidden:     hiddenFields(req),
	}

	status := http.StatusOK
	if message != "" {
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	httpx.NoCache(w)
	w.WriteHeader(status)
	if err := loginTemplate.Execute(w, page); err != nil {
		// Headers already sent; nothing left to do but log.
		slogx.FromContext(r.Context()).Error("failed to render login page", "error", err)
	}
}

func hiddenFields(req service.AuthorizeRequest) map[string]string {
	fields := map[string]string{
		"response_type": req.ResponseType,
		"client_id":     req.ClientID,
		"redirect_uri":  req.RedirectURI,
	}
	if len(req.Scope) > 0 {
		fields["scope"] = strings.Join(req.Scope, " ")
	}
	if req.State != "" {
		fields["state"] = req.State
	}
	if req.CodeChallenge != "" {
		fields["code_challenge"] = req.CodeChallenge
	}
	if req.CodeChallengeMethod != "" {
		fields["code_challenge_method"] = req.CodeChallengeMethod
	}
	return fields
}

func (h *AuthorizeHandler) redirectError(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest, errorCode, description string) {
	redirectURL := buildErrorRedirect(req.RedirectURI, req.State, errorCode, description)
	if redirectURL == "" {
		authsdk.NewOAuth2Error(http.StatusBadRequest, errorCode, description).WriteError(w)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// buildAuthorizeRedirect constructs a redirect URL for a successful authorization.
func buildAuthorizeRedirect(baseURI, code, state string) (string, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// buildErrorRedirect constructs a redirect URL for an OAuth2 error.
// It returns an empty string if the baseURI is invalid.
func buildErrorRedirect(baseURI, state, errorCode, description string) string {
	u, err := url.Parse(baseURI)
	if err != nil || baseURI == "" {
		return ""
	}

	q := u.Query()
	q.Set("error", errorCode)
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
