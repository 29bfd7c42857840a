package scopes

import "fmt"

const (
	// ToolAccess is the baseline scope every tool call requires.
	ToolAccess = "mcp:tools"

	// Global scopes subsume every category at the same action level.
	GlobalRead  = "lm:read"
	GlobalWrite = "lm:write"
	GlobalAdmin = "lm:admin"
)

// Action is the last segment of a category scope.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// Categories are the resource categories of the monitoring API.
var Categories = []string{
	"alerts",
	"alertrules",
	"collectors",
	"dashboards",
	"devices",
	"escalations",
	"integrations",
	"logs",
	"ops",
	"reports",
	"sdts",
	"settings",
	"users",
	"websites",
}

// Edge is a directed implication: holding From implies holding To.
type Edge struct {
	From string
	To   string
}

// Hierarchy is the static implication table. It is acyclic.
var Hierarchy = buildHierarchy()

// Category returns the scope string for a category and action, e.g. "lm:alerts:write".
func Category(category string, action Action) string {
	return fmt.Sprintf("lm:%s:%s", category, action)
}

func buildHierarchy() []Edge {
	edges := []Edge{
		{From: GlobalAdmin, To: GlobalWrite},
		{From: GlobalWrite, To: GlobalRead},
	}
	for _, c := range Categories {
		edges = append(edges,
			Edge{From: Category(c, ActionAdmin), To: Category(c, ActionWrite)},
			Edge{From: Category(c, ActionWrite), To: Category(c, ActionRead)},
			Edge{From: GlobalAdmin, To: Category(c, ActionAdmin)},
			Edge{From: GlobalWrite, To: Category(c, ActionWrite)},
			Edge{From: GlobalRead, To: Category(c, ActionRead)},
		)
	}
	return edges
}

// Descriptions are the human-readable scope descriptions advertised in discovery metadata.
var Descriptions = buildDescriptions()

func buildDescriptions() map[string]string {
	d := map[string]string{
		ToolAccess:  "Call MCP tools",
		GlobalRead:  "Read access to all LogicMonitor resources",
		GlobalWrite: "Read and write access to all LogicMonitor resources",
		GlobalAdmin: "Full administrative access to all LogicMonitor resources",
	}
	for _, c := range Categories {
		d[Category(c, ActionRead)] = fmt.Sprintf("Read %s", c)
		d[Category(c, ActionWrite)] = fmt.Sprintf("Create and modify %s", c)
		d[Category(c, ActionAdmin)] = fmt.Sprintf("Administer %s, including deletion", c)
	}
	return d
}

// Supported lists every scope the service understands, baseline first.
func Supported() []string {
	supported := []string{ToolAccess, GlobalRead, GlobalWrite, GlobalAdmin}
	for _, c := range Categories {
		supported = append(supported,
			Category(c, ActionRead),
			Category(c, ActionWrite),
			Category(c, ActionAdmin),
		)
	}
	return supported
}
