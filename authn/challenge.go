package authn

import (
	"strings"
)

// Challenge is the content of a Bearer WWW-Authenticate header (RFC 6750,
// with the RFC 9728 resource_metadata parameter).
type Challenge struct {
	Realm            string
	ResourceMetadata string
	Scope            string
	Error            string
	ErrorDescription string
}

// BuildWWWAuthenticate renders c in a fixed parameter order. Empty parameters are omitted.
func BuildWWWAuthenticate(c Challenge) string {
	params := []struct{ key, value string }{
		{"realm", c.Realm},
		{"resource_metadata", c.ResourceMetadata},
		{"scope", c.Scope},
		{"error", c.Error},
		{"error_description", c.ErrorDescription},
	}

	var parts []string
	for _, p := range params {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+`="`+quoteEscape(p.value)+`"`)
	}
	if len(parts) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(parts, ", ")
}

func quoteEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
