package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - upstream login
	RouteAuthLogin    = "/auth/login"
	RouteAuthCallback = "/auth/callback"
	RouteAuthLogout   = "/auth/logout"

	// OAuth2 Routes - downstream authorization server
	RouteToken    = "/token"
	RouteRegister = "/register"
	RouteRevoke   = "/revoke"

	// Discovery Routes
	RouteWellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	RouteWellKnownProtectedResource = "/.well-known/oauth-protected-resource"
	RouteWellKnownJWKS              = "/.well-known/jwks.json"

	// MCP transport Routes
	RouteMCP     = "/mcp"
	RouteSSE     = "/sse"
	RouteMessage = "/message"

	// Operational Routes
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)
