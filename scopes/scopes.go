// Package scopes implements the colon-delimited scope hierarchy
// (namespace[:resource][:action]) and per-tool authorization.
package scopes

import (
	"sort"
	"strings"
)

// Set is an unordered set of scope strings.
type Set map[string]struct{}

// Parse splits a space-separated scope string into a Set, discarding empties.
func Parse(scope string) Set {
	return NewSet(strings.Fields(scope)...)
}

func NewSet(scopes ...string) Set {
	s := make(Set, len(scopes))
	for _, scope := range scopes {
		if scope = strings.TrimSpace(scope); scope != "" {
			s[scope] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// Slice returns the scopes sorted.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string {
	return strings.Join(s.Slice(), " ")
}

// ContainsAll reports whether every member of other is in s.
func (s Set) ContainsAll(other Set) bool {
	for scope := range other {
		if !s.Has(scope) {
			return false
		}
	}
	return true
}

// Expand returns the transitive closure of scopes under the Hierarchy,
// computed by fixed-point iteration over the edge table. Any "<prefix>:admin"
// also implies "<prefix>:write", which implies "<prefix>:read", so categories
// outside the table follow the same action ladder.
func Expand(scopes Set) Set {
	expanded := make(Set, len(scopes))
	for scope := range scopes {
		expanded[scope] = struct{}{}
	}

	for changed := true; changed; {
		changed = false
		for _, edge := range Hierarchy {
			if expanded.Has(edge.From) && !expanded.Has(edge.To) {
				expanded[edge.To] = struct{}{}
				changed = true
			}
		}
		for scope := range expanded {
			if lower, ok := lowerAction(scope); ok && !expanded.Has(lower) {
				expanded[lower] = struct{}{}
				changed = true
			}
		}
	}
	return expanded
}

func lowerAction(scope string) (string, bool) {
	i := strings.LastIndex(scope, ":")
	if i <= 0 {
		return "", false
	}
	prefix, action := scope[:i], Action(scope[i+1:])
	switch action {
	case ActionAdmin:
		return prefix + ":" + string(ActionWrite), true
	case ActionWrite:
		return prefix + ":" + string(ActionRead), true
	}
	return "", false
}

// Missing returns required minus Expand(user), sorted.
func Missing(user Set, required []string) []string {
	effective := Expand(user)
	var missing []string
	for _, scope := range required {
		if !effective.Has(scope) {
			missing = append(missing, scope)
		}
	}
	sort.Strings(missing)
	return missing
}
