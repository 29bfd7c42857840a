package scopes

import "github.com/rs/zerolog/log"

// Decision is the outcome of a tool authorization check.
type Decision struct {
	OK       bool     `json:"ok"`
	Missing  []string `json:"missing,omitempty"`
	Required []string `json:"required"`
}

// Manager answers per-tool authorization questions against a static
// tool name to required scope table.
type Manager struct {
	requirements map[string][]string
}

// NewManager creates a Manager over requirements. The table is copied and every
// entry is given the baseline ToolAccess scope.
func NewManager(requirements map[string][]string) *Manager {
	m := &Manager{requirements: make(map[string][]string, len(requirements))}
	for tool, required := range requirements {
		set := NewSet(required...)
		set[ToolAccess] = struct{}{}
		m.requirements[tool] = set.Slice()
	}
	return m
}

// RequiredFor returns the scopes a tool requires. Unknown tools need only ToolAccess.
func (m *Manager) RequiredFor(tool string) []string {
	if required, ok := m.requirements[tool]; ok {
		return append([]string(nil), required...)
	}
	return []string{ToolAccess}
}

// Authorize checks a space-separated user scope string against a tool's
// requirements. It never fails: insufficient scope is reported in the Decision.
func (m *Manager) Authorize(tool, userScope string) Decision {
	required := m.RequiredFor(tool)
	missing := Missing(Parse(userScope), required)
	if len(missing) > 0 {
		log.Debug().Str("tool", tool).Strs("missing", missing).Msg("tool call denied")
	}
	return Decision{
		OK:       len(missing) == 0,
		Missing:  missing,
		Required: required,
	}
}

// Tools lists the tools in the table.
func (m *Manager) Tools() []string {
	tools := make(Set, len(m.requirements))
	for tool := range m.requirements {
		tools[tool] = struct{}{}
	}
	return tools.Slice()
}
