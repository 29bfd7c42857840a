package sessions

import (
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/users"
)

// Credentials is the upstream provider's credential bundle for a session.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	TokenType    string    `json:"token_type,omitempty"`
}

// CanRefresh reports whether a refresh credential is present.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Expired reports whether the access token has expired at now. A zero expiry never expires.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// UpstreamSession holds the upstream credentials of an authenticated principal.
// Sessions are created when an upstream login completes, overwritten on every
// refresh and deleted on refresh failure, logout or sweep.
type UpstreamSession struct {
	ID           string           `json:"id"`            // Opaque session identifier
	ProviderKind string           `json:"provider_kind"` // Provider that issued the credentials
	Principal    *users.Principal `json:"principal"`     // Authenticated identity
	Credentials  Credentials      `json:"credentials"`   // Current upstream credentials
	CreatedAt    time.Time        `json:"created_at"`
	LastRefresh  time.Time        `json:"last_refresh,omitempty"`
}
