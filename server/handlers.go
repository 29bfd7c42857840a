package server

import (
	"net/http"
)

const (
	authModeOpen   = "open"
	authModeStatic = "static"
	authModeOAuth  = "oauth"
)

// Health reports liveness plus enough configuration to tell how clients are
// expected to authenticate.
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":    "ok",
			"name":      s.config.AppName,
			"version":   s.version,
			"transport": s.config.Transport,
			"auth_mode": s.authMode(),
		}
		if s.oauthEnabled() {
			resp["provider"] = s.config.Provider.Kind
		}
		writeJSON(w, http.StatusOK, resp, "no-store")
	}
}

func (s *Server) authMode() string {
	switch {
	case s.oauthEnabled():
		return authModeOAuth
	case s.config.Security.APIToken != "":
		return authModeStatic
	default:
		return authModeOpen
	}
}
