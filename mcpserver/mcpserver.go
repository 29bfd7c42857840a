// Package mcpserver builds the MCP protocol server and exposes it over stdio,
// SSE and streamable HTTP. Every transport carries the authenticated identity
// into the tool handler context.
package mcpserver

import (
	"context"
	"io"
	"net/http"

	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

const (
	Name = "lm-mcp-gateway"

	StreamableEndpoint = "/mcp"
	SSEEndpoint        = "/sse"
	MessageEndpoint    = "/message"
)

// Transport names accepted in configuration.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// New creates the MCP server with every tool registered behind the scope gate.
func New(version string, gate *tools.Gate, dispatcher *tools.Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(Name, version,
		server.WithToolCapabilities(true),
		server.WithToolHandlerMiddleware(gate.Middleware()),
		server.WithRecovery(),
	)
	tools.Register(s, dispatcher)
	return s
}

// StreamableHTTP returns the streamable HTTP handler. It expects to sit behind
// authn.Authenticator.Middleware.
func StreamableHTTP(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(StreamableEndpoint),
		server.WithHTTPContextFunc(carryIdentity),
	)
}

// SSE returns the SSE server. Mount SSEHandler at SSEEndpoint and
// MessageHandler at MessageEndpoint, both behind the authenticator.
func SSE(s *server.MCPServer, baseURL string) *server.SSEServer {
	return server.NewSSEServer(s,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint(SSEEndpoint),
		server.WithMessageEndpoint(MessageEndpoint),
		server.WithSSEContextFunc(carryIdentity),
	)
}

// ServeStdio runs the stdio transport until ctx is cancelled or in closes.
// There are no per-request headers on stdio, so identity is resolved once at
// startup and attached to every call.
func ServeStdio(ctx context.Context, s *server.MCPServer, identity *authn.Identity, in io.Reader, out io.Writer) error {
	if identity == nil {
		return errors.New("[ServeStdio] identity is required")
	}
	stdio := server.NewStdioServer(s)
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return authn.WithIdentity(ctx, identity)
	})
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "[ServeStdio]")
	}
	return nil
}

func carryIdentity(ctx context.Context, r *http.Request) context.Context {
	if identity, ok := authn.IdentityFromContext(r.Context()); ok {
		return authn.WithIdentity(ctx, identity)
	}
	return ctx
}
