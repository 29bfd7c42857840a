package oauthmodel

import (
	"net/url"
	"strings"
)

// LoginParameters holds the downstream client's parameters for /auth/login.
// They are validated before any upstream provider is contacted and then carried,
// opaquely to the provider, inside the provider's own state value.
type LoginParameters struct {
	// ClientID identifies the (public) downstream client.
	// Required: No. Clients that skipped dynamic registration may omit it.
	ClientID string `json:"client_id,omitempty"`

	// RedirectURI is where the authorization response will be sent.
	// Required: Yes
	// Example: "http://127.0.0.1:33418/callback"
	RedirectURI string `json:"redirect_uri"`

	// State is an opaque value echoed back to the downstream client unchanged.
	// Required: Recommended (CSRF protection)
	State string `json:"state,omitempty"`

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required: Yes
	// Example: BASE64URL(SHA256(code_verifier)), 43 characters
	CodeChallenge string `json:"code_challenge"`

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Required: Yes, and must be "S256"
	CodeChallengeMethod CodeMethodType `json:"code_challenge_method"`

	// Scope specifies the permissions being requested.
	// Required: No (defaults to the service's baseline scope)
	// Example: "mcp:tools lm:alerts:read"
	Scope string `json:"scope,omitempty"`

	// Resources are the raw RFC 8707 resource indicators from the request.
	// Required: No
	// Example: "https://mcp.example.com"
	Resources []string `json:"resource,omitempty"`

	// Display selects the code hand-back mode; "code" renders the code for manual copy.
	Display DisplayMode `json:"display,omitempty"`
}

// ParseLoginParameters reads LoginParameters from the /auth/login query string.
func ParseLoginParameters(query url.Values) LoginParameters {
	return LoginParameters{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: CodeMethodType(query.Get("code_challenge_method")),
		Scope:               query.Get("scope"),
		Resources:           query["resource"],
		Display:             DisplayMode(query.Get("display")),
	}
}

// ValidateRedirect checks only the redirect target, so errors for the remaining
// parameters can be reported back to it.
func (p *LoginParameters) ValidateRedirect() error {
	if strings.TrimSpace(p.RedirectURI) == "" {
		return ErrInvalidRedirectUri
	}
	u, err := url.Parse(p.RedirectURI)
	if err != nil || u.Scheme == "" || u.Fragment != "" {
		return ErrInvalidRedirectUri
	}
	return nil
}

// ValidatePKCE enforces the mandatory S256 challenge.
func (p *LoginParameters) ValidatePKCE() error {
	if p.CodeChallengeMethod != CodeMethodTypeS256 {
		return ErrInvalidCodeChallengeMethod
	}
	// RFC 7636: 43 to 128 unreserved characters
	if l := len(p.CodeChallenge); l < 43 || l > 128 {
		return ErrInvalidCodeChallenge
	}
	return nil
}
