package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

// WhoAmI is the built-in tool reporting the caller's identity and scope.
const WhoAmI = "whoami"

// Invocation is a tool call that passed the scope gate.
type Invocation struct {
	Tool        string
	Arguments   map[string]any
	Identity    *authn.Identity
	Credentials *sessions.Credentials // upstream credentials, nil when the caller has no session
}

// Backend executes authorized tool calls against the monitoring API.
type Backend interface {
	Call(ctx context.Context, inv Invocation) (*mcp.CallToolResult, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, inv Invocation) (*mcp.CallToolResult, error)

func (f BackendFunc) Call(ctx context.Context, inv Invocation) (*mcp.CallToolResult, error) {
	return f(ctx, inv)
}

// CredentialSource resolves the upstream credentials of a session.
type CredentialSource interface {
	Credentials(ctx context.Context, sessionID string) (sessions.Credentials, error)
}

// Dispatcher builds tool handlers that attach upstream credentials and hand
// the call to a Backend.
type Dispatcher struct {
	backend     Backend
	credentials CredentialSource
}

func NewDispatcher(backend Backend, credentials CredentialSource) *Dispatcher {
	if backend == nil {
		backend = unconfiguredBackend{}
	}
	return &Dispatcher{backend: backend, credentials: credentials}
}

// Handle is the mcp-go handler for every catalogue tool.
func (d *Dispatcher) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, _ := authn.IdentityFromContext(ctx)
	inv := Invocation{
		Tool:      request.Params.Name,
		Arguments: request.GetArguments(),
		Identity:  identity,
	}

	if identity != nil && identity.SessionID != "" && d.credentials != nil {
		creds, err := d.credentials.Credentials(ctx, identity.SessionID)
		switch {
		case errors.Is(err, errors.ErrSessionNotFound):
			return mcp.NewToolResultError("Your sign-in session has ended. Sign in again to continue."), nil
		case err != nil:
			log.Err(err).Str("tool", inv.Tool).Msg("failed to load upstream credentials")
			return mcp.NewToolResultError(fmt.Sprintf("failed to load upstream credentials: %v", err)), nil
		}
		inv.Credentials = &creds
	}

	result, err := d.backend.Call(ctx, inv)
	if err != nil {
		log.Err(err).Str("tool", inv.Tool).Msg("tool call failed")
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", inv.Tool, err)), nil
	}
	return result, nil
}

// Register adds the whoami tool and one tool per ScopeRequirements entry to s.
func Register(s *server.MCPServer, d *Dispatcher) {
	s.AddTool(mcp.NewTool(WhoAmI,
		mcp.WithDescription("Report the authenticated principal, granted scope and authentication method."),
	), handleWhoAmI)

	for _, name := range NewScopeManager().Tools() {
		s.AddTool(mcp.NewTool(name,
			mcp.WithDescription(Describe(name)),
		), d.Handle)
	}
}

// Describe renders a tool name and its required scopes as a short description.
func Describe(tool string) string {
	words := strings.Split(tool, "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return fmt.Sprintf("%s. Requires: %s.", strings.Join(words, " "),
		strings.Join(NewScopeManager().RequiredFor(tool), " "))
}

func handleWhoAmI(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, ok := authn.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("no identity attached to this request"), nil
	}
	body, err := json.Marshal(map[string]any{
		"principal":  identity.Principal,
		"scope":      identity.Scope,
		"method":     identity.Method,
		"session_id": identity.SessionID,
		"client_id":  identity.ClientID,
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}

type unconfiguredBackend struct{}

func (unconfiguredBackend) Call(_ context.Context, inv Invocation) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s is authorized but no monitoring API backend is configured", inv.Tool)), nil
}
