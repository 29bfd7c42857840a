package authn

import (
	"context"

	"github.com/jrsteele09/lm-mcp-gateway/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const contextKeyIdentity ContextKey = "identity"

// WithIdentity attaches an authenticated identity to ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext returns the identity attached by the authenticator.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(*Identity)
	return identity, ok && identity != nil
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *users.Principal {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.Principal
	}
	return nil
}

// ScopeFromContext returns the granted scope string, or "".
func ScopeFromContext(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.Scope
	}
	return ""
}
