package oauthmodel

// TokenResponse represents the response from the /token endpoint.
// The body shape is fixed: access_token, token_type, expires_in and scope.
type TokenResponse struct {
	// AccessToken is the signed JWT bound to the resolved audience.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Note: This is a hint - actual expiration is in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-separated scope granted at authorization time.
	Scope string `json:"scope"`
}
