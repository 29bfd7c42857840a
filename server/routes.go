package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
)

func (s *Server) initRoutes() {
	r := s.router
	r.Use(s.RecoverMiddleware, s.LoggingMiddleware, s.CorsMiddleware)

	// Discovery
	r.Get(RouteWellKnownProtectedResource, s.ProtectedResourceMetadata())
	r.Get(RouteWellKnownProtectedResource+"/*", s.ProtectedResourceMetadata())
	r.Get(RouteWellKnownAuthServer, s.AuthorizationServerMetadata())
	r.Get(RouteWellKnownAuthServer+"/*", s.AuthorizationServerMetadata())
	r.Get(RouteWellKnownJWKS, s.JWKS())

	// Upstream login and the downstream authorization server
	r.Group(func(r chi.Router) {
		r.Use(s.RequireOAuth, s.FrameSecurityMiddleware)
		r.Get(RouteAuthLogin, s.Login())
		r.Get(RouteAuthCallback, s.Callback())
		r.Get(RouteAuthLogout, s.Logout())
		r.Post(RouteAuthLogout, s.Logout())
		r.Post(RouteToken, s.Token())
		r.Post(RouteRegister, s.Register())
		r.Post(RouteRevoke, s.Revoke())
	})

	// MCP transports
	r.Group(func(r chi.Router) {
		r.Use(s.authn.Middleware)
		r.Handle(RouteMCP, mcpserver.StreamableHTTP(s.mcp))
		r.Get(RouteSSE, s.sse.SSEHandler().ServeHTTP)
		r.Post(RouteMessage, s.sse.MessageHandler().ServeHTTP)
	})

	r.Get(RouteHealth, s.Health())
	if s.metrics != nil {
		r.Handle(RouteMetrics, s.metrics.Handler())
	}
}
