package oauthmodel

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// Every downstream client is public, so PKCE is mandatory for every authorization attempt.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: BASE64URL(SHA256(provided code_verifier)) == stored code_challenge
	// This is the only method accepted at /auth/login.
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain is recognised only so it can be rejected with a precise error.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges a one-time code plus PKCE verifier for a bearer token.
	// Token request includes: code, client_id, code_verifier, optional resource
	// Returns: access_token, token_type, expires_in, scope
	AuthorizationCodeGrant GrantType = "authorization_code"
)

// DisplayMode controls how the issued authorization code is handed back to the downstream client.
type DisplayMode string

const (
	// DisplayRedirect appends code and state to the downstream redirect_uri (default).
	DisplayRedirect DisplayMode = ""

	// DisplayCode renders the code for manual copy, for clients that cannot receive a redirect.
	DisplayCode DisplayMode = "code"
)

// TokenTypeBearer is the only token_type this service issues.
const TokenTypeBearer = "Bearer"
