package oauthmodel

import (
	"net/url"
	"strings"
)

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the /token endpoint.
type TokenRequest struct {
	// GrantType must be "authorization_code".
	GrantType GrantType

	// ClientID identifies the public client performing the exchange.
	ClientID string

	// Code is the one-time authorization code issued at /auth/callback.
	Code string

	// CodeVerifier is the PKCE secret whose S256 hash must match the stored challenge.
	CodeVerifier string

	// Resources are the RFC 8707 resource indicators requested for this token.
	// May be repeated in the form body or given as a space-separated list.
	Resources []string

	// RedirectURI, when sent, must equal the redirect_uri the code was issued for.
	RedirectURI string
}

// ParseTokenRequest reads a TokenRequest from url-encoded form values.
func ParseTokenRequest(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    GrantType(strings.TrimSpace(form.Get("grant_type"))),
		ClientID:     form.Get("client_id"),
		Code:         form.Get("code"),
		CodeVerifier: form.Get("code_verifier"),
		Resources:    form["resource"],
		RedirectURI:  form.Get("redirect_uri"),
	}
}
