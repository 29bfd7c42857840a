package users

// AnonymousID is the subject attached to requests when the deployment runs without authentication.
const AnonymousID = "anonymous"

// Principal is an authenticated identity as resolved by an upstream provider.
type Principal struct {
	ID    string `json:"id"`              // Provider subject, unique per provider
	Name  string `json:"name,omitempty"`  // Display name
	Email string `json:"email,omitempty"` // Email address when the provider releases it
}

// Anonymous returns the principal used in open mode.
func Anonymous() *Principal {
	return &Principal{ID: AnonymousID, Name: "Anonymous"}
}

// IsAnonymous reports whether p is the open mode principal.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == AnonymousID
}

// DisplayName prefers the name, then the email, then the subject.
func (p *Principal) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}

// Claims returns the principal snapshot embedded in issued tokens.
func (p *Principal) Claims() map[string]any {
	claims := map[string]any{"id": p.ID}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if p.Email != "" {
		claims["email"] = p.Email
	}
	return claims
}

// PrincipalFromClaims reverses Claims. It returns nil when no id is present.
func PrincipalFromClaims(v any) *Principal {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	id, _ := m["id"].(string)
	if id == "" {
		return nil
	}
	name, _ := m["name"].(string)
	email, _ := m["email"].(string)
	return &Principal{ID: id, Name: name, Email: email}
}
