// Package server is the HTTP surface of the gateway: upstream login, the
// downstream authorization server endpoints, discovery documents and the
// authenticated MCP transports.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/lm-mcp-gateway/auth"
	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/clients"
	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	mcpgo "github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

// SessionTerminator ends upstream sessions on logout.
type SessionTerminator interface {
	Delete(ctx context.Context, sessionID string) error
}

// Options are the collaborators the HTTP surface is built from. Coordinator,
// Codec, Sessions and Cookie are nil when no upstream provider is configured.
type Options struct {
	Config        config.Config
	Version       string
	Authenticator *authn.Authenticator
	Coordinator   *auth.Coordinator
	Codec         *token.Codec
	Legacy        token.LegacyTokenStore
	Clients       clients.Repo
	Sessions      SessionTerminator
	Cookie        *authn.SessionCookie
	MCP           *mcpgo.MCPServer
	Metrics       *metrics.Metrics
}

type Server struct {
	router  chi.Router
	config  config.Config
	version string
	baseURL string

	authn       *authn.Authenticator
	coordinator *auth.Coordinator
	codec       *token.Codec
	legacy      token.LegacyTokenStore
	clients     clients.Repo
	sessions    SessionTerminator
	cookie      *authn.SessionCookie
	mcp         *mcpgo.MCPServer
	sse         *mcpgo.SSEServer
	metrics     *metrics.Metrics
}

func New(opts Options) (*Server, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("[server.New] authenticator is required")
	}
	if opts.MCP == nil {
		return nil, errors.New("[server.New] MCP server is required")
	}
	if opts.Coordinator != nil && (opts.Codec == nil || opts.Sessions == nil) {
		return nil, errors.New("[server.New] codec and sessions are required with a coordinator")
	}
	if opts.Clients == nil {
		opts.Clients = clients.NewInMemoryRepo()
	}

	s := &Server{
		router:      chi.NewRouter(),
		config:      opts.Config,
		version:     opts.Version,
		baseURL:     strings.TrimSuffix(opts.Config.BaseURL, "/"),
		authn:       opts.Authenticator,
		coordinator: opts.Coordinator,
		codec:       opts.Codec,
		legacy:      opts.Legacy,
		clients:     opts.Clients,
		sessions:    opts.Sessions,
		cookie:      opts.Cookie,
		mcp:         opts.MCP,
		metrics:     opts.Metrics,
	}
	s.sse = mcpserver.SSE(opts.MCP, s.baseURL)

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown closes open SSE streams.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}

func (s *Server) oauthEnabled() bool {
	return s.coordinator != nil
}

func (s *Server) logRoutes() {
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logRoute(method, route)
		return nil
	})
}
