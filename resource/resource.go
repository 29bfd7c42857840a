// Package resource implements RFC 8707 resource indicator handling: parsing,
// normalisation, validation against the supported set and audience selection.
//
// All comparisons are plain string equality after trimming one trailing slash.
// Scheme and host casing and IDN forms are not folded.
package resource

import (
	"net/url"
	"slices"
	"strings"

	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
)

// Normalize strips exactly one trailing slash from the path of an absolute URI,
// preserving query and fragment. Malformed or relative input is returned unchanged.
// It is idempotent only for paths ending in at most one slash: "https://h/api//"
// becomes "https://h/api/", and a second call yields "https://h/api". Such a
// resource therefore never matches a supported resource without the slashes.
func Normalize(uri string) string {
	if !IsAbsoluteResourceURI(uri) {
		return uri
	}

	end := len(uri)
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		end = i
	}
	base, rest := uri[:end], uri[end:]
	if !strings.HasSuffix(base, "/") {
		return uri
	}
	return strings.TrimSuffix(base, "/") + rest
}

// IsAbsoluteResourceURI reports whether s has both a scheme and an authority.
func IsAbsoluteResourceURI(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// ParseResourceList accepts a single string, a space-separated string or a list
// and returns the normalised, non-empty entries in order. Duplicates are kept.
func ParseResourceList(value any) []string {
	var raw []string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	default:
		return nil
	}

	var resources []string
	for _, entry := range raw {
		for _, field := range strings.Fields(entry) {
			resources = append(resources, Normalize(field))
		}
	}
	return resources
}

// ValidateAgainstSupported rejects any requested resource that is not an absolute
// URI or that does not equal one of the supported resources.
func ValidateAgainstSupported(requested, supported []string) error {
	if len(requested) == 0 {
		return nil
	}

	normalizedSupported := normalizeAll(supported)
	var offending []string
	for _, r := range requested {
		if !IsAbsoluteResourceURI(r) || !slices.Contains(normalizedSupported, Normalize(r)) {
			offending = append(offending, r)
		}
	}
	if len(offending) > 0 {
		return oauthmodel.InvalidTarget("unsupported resource %s; supported resources: %s",
			strings.Join(offending, ", "), strings.Join(normalizedSupported, ", "))
	}
	return nil
}

// MatchAuthorized requires every resource requested at token exchange to have been
// authorized at login. Requesting resources that were never authorized is rejected.
func MatchAuthorized(requested, authorized []string) error {
	if len(requested) == 0 {
		return nil
	}
	if len(authorized) == 0 {
		return oauthmodel.InvalidTarget("resource %s was not requested during authorization",
			strings.Join(requested, ", "))
	}

	normalizedAuthorized := normalizeAll(authorized)
	var offending []string
	for _, r := range requested {
		if !slices.Contains(normalizedAuthorized, Normalize(r)) {
			offending = append(offending, r)
		}
	}
	if len(offending) > 0 {
		return oauthmodel.InvalidTarget("resource %s exceeds the authorized resources: %s",
			strings.Join(offending, ", "), strings.Join(normalizedAuthorized, ", "))
	}
	return nil
}

// ChooseAudience resolves the token audience. An explicit request wins, then the
// resources authorized at login, then the service default.
func ChooseAudience(requested, authorized []string, defaultAudience string) Audience {
	switch {
	case len(requested) > 0:
		return Audience(normalizeAll(requested))
	case len(authorized) > 0:
		return Audience(normalizeAll(authorized))
	default:
		return Audience{Normalize(defaultAudience)}
	}
}

// Audience is a token audience of one or more resource URIs.
type Audience []string

// Claim returns the value for the "aud" claim: a string for a single resource,
// a list otherwise.
func (a Audience) Claim() any {
	if len(a) == 1 {
		return a[0]
	}
	return []string(a)
}

// Contains reports whether uri, after normalisation, is one of the audience values.
func (a Audience) Contains(uri string) bool {
	target := Normalize(uri)
	for _, v := range a {
		if Normalize(v) == target {
			return true
		}
	}
	return false
}

func normalizeAll(uris []string) []string {
	normalized := make([]string, 0, len(uris))
	for _, u := range uris {
		if u = strings.TrimSpace(u); u != "" {
			normalized = append(normalized, Normalize(u))
		}
	}
	return normalized
}
