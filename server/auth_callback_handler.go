package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	"github.com/rs/zerolog/log"
)

const sessionCookieMaxAge = 24 * time.Hour

// Login validates the downstream authorization request and sends the browser
// upstream, or back to the client with an OAuth error.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := oauthmodel.ParseLoginParameters(r.URL.Query())
		target, err := s.coordinator.StartLogin(&params)
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Callback completes the upstream login. The browser session cookie is set,
// then the code goes back to the client (or is shown for manual copy), or a
// legacy token is shown for direct logins.
func (s *Server) Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		state := query.Get("state")

		if upstreamError := query.Get("error"); upstreamError != "" {
			log.Warn().Str("error", upstreamError).Str("description", query.Get("error_description")).Msg("upstream login failed")
			target, err := s.coordinator.CallbackErrorURL(state, upstreamError, query.Get("error_description"))
			if err != nil {
				writeOAuthError(w, err)
				return
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		result, err := s.coordinator.HandleCallback(r.Context(), query.Get("code"), state)
		if err != nil {
			writeOAuthError(w, err)
			return
		}

		if s.cookie != nil {
			s.cookie.Set(w, result.SessionID, int(sessionCookieMaxAge.Seconds()))
		}
		log.Info().Str("principal", result.Principal.DisplayName()).Str("session", result.SessionID).Msg("upstream login complete")

		switch {
		case result.LegacyToken != nil:
			renderPage(w, "token.html", map[string]any{
				"Token":     result.LegacyToken.Token,
				"Scope":     result.LegacyToken.Scope,
				"ExpiresAt": result.LegacyToken.ExpiresAt.UTC().Format(time.RFC1123),
				"Principal": result.Principal.DisplayName(),
			})
		case result.DisplayCode:
			renderPage(w, "code.html", map[string]any{
				"Code":      result.Code,
				"Principal": result.Principal.DisplayName(),
			})
		default:
			http.Redirect(w, r, result.RedirectURL, http.StatusFound)
		}
	}
}

// Logout ends the browser's upstream session, cancelling its pending refresh.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cookie != nil {
			if sessionID, ok := s.cookie.Read(r); ok {
				if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
					log.Err(err).Str("session", sessionID).Msg("failed to end session")
				} else {
					log.Info().Str("session", sessionID).Msg("session ended")
				}
			}
			s.cookie.Clear(w)
		}
		renderPage(w, "logged_out.html", nil)
	}
}
