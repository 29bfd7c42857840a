package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

// Denial is the structured payload returned to the calling agent when a tool
// call lacks scope. It is a tool result, not a transport error.
type Denial struct {
	Error    string   `json:"error"`
	Tool     string   `json:"tool"`
	Missing  []string `json:"missing_scopes"`
	Required []string `json:"required_scopes"`
	Granted  string   `json:"granted_scope"`
}

// Gate checks every tool call against the scope table before dispatch.
type Gate struct {
	manager *scopes.Manager
	metrics *metrics.Metrics
}

type GateOption func(*Gate)

func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

func NewGate(manager *scopes.Manager, options ...GateOption) *Gate {
	if manager == nil {
		manager = NewScopeManager()
	}
	g := &Gate{manager: manager}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Check authorizes tool for the identity carried by ctx. A nil result means the
// call may proceed.
func (g *Gate) Check(ctx context.Context, tool string) *mcp.CallToolResult {
	granted := authn.ScopeFromContext(ctx)
	decision := g.manager.Authorize(tool, granted)
	if decision.OK {
		return nil
	}

	g.metrics.ToolDenied(tool)
	principal := authn.PrincipalFromContext(ctx)
	log.Info().Str("tool", tool).Str("principal", principal.DisplayName()).
		Strs("missing", decision.Missing).Msg("tool call denied for insufficient scope")

	denial := Denial{
		Error:    "insufficient_scope",
		Tool:     tool,
		Missing:  decision.Missing,
		Required: decision.Required,
		Granted:  granted,
	}
	return denialResult(denial)
}

// Middleware returns the tool handler middleware that runs Check ahead of
// every handler.
func (g *Gate) Middleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if denied := g.Check(ctx, request.Params.Name); denied != nil {
				return denied, nil
			}
			return next(ctx, request)
		}
	}
}

func denialResult(d Denial) *mcp.CallToolResult {
	text := fmt.Sprintf("Tool %q requires scope(s) %s. Missing: %s. Re-authorize with the missing scopes to use this tool.",
		d.Tool, strings.Join(d.Required, " "), strings.Join(d.Missing, " "))
	if body, err := json.Marshal(d); err == nil {
		text += "\n" + string(body)
	}
	result := mcp.NewToolResultError(text)
	result.StructuredContent = d
	return result
}
