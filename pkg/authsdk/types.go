package authsdk

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses. Client code
// should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// HealthChecks reports the status of individual service dependencies.
type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Signer   string `json:"signer,omitempty"`
}

// HealthResponse is the body of the /livez and /readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// This is returned from POST /oauth2/token for every grant type.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access
	// tokens. Absent for the client_credentials grant.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}
