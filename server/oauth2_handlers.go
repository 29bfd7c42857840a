package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/clients"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxRegistrationBody = 64 << 10
)

// ProtectedResourceMetadata serves the RFC 9728 document for this MCP server.
func (s *Server) ProtectedResourceMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"resource":                 s.baseURL,
			"resource_name":            s.config.AppName,
			"scopes_supported":         scopes.Supported(),
			"bearer_methods_supported": []string{"header"},
		}
		if s.oauthEnabled() {
			resp["authorization_servers"] = []string{s.baseURL}
		}
		writeJSON(w, http.StatusOK, resp, "public, max-age=3600")
	}
}

// AuthorizationServerMetadata serves the RFC 8414 document. Every client is
// public and must use S256 PKCE.
func (s *Server) AuthorizationServerMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.oauthEnabled() {
			writeJSONError(w, "not_found", "OAuth is not configured on this server", http.StatusNotFound)
			return
		}

		resp := map[string]any{
			"issuer":                                s.codec.Issuer(),
			"authorization_endpoint":                s.baseURL + RouteAuthLogin,
			"token_endpoint":                        s.baseURL + RouteToken,
			"registration_endpoint":                 s.baseURL + RouteRegister,
			"revocation_endpoint":                   s.baseURL + RouteRevoke,
			"scopes_supported":                      scopes.Supported(),
			"scope_descriptions":                    scopes.Descriptions,
			"response_types_supported":              []string{clients.ResponseTypeCode},
			"response_modes_supported":              []string{"query"},
			"grant_types_supported":                 []string{string(oauthmodel.AuthorizationCodeGrant)},
			"code_challenge_methods_supported":      []string{string(oauthmodel.CodeMethodTypeS256)},
			"token_endpoint_auth_methods_supported": []string{clients.AuthMethodNone},
		}
		if _, ok := s.codec.Signer().(token.KeySetPublisher); ok {
			resp["jwks_uri"] = s.baseURL + RouteWellKnownJWKS
		}
		writeJSON(w, http.StatusOK, resp, "public, max-age=3600")
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens. Symmetric signers
// have nothing to publish.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.codec == nil {
			writeJSONError(w, "not_found", "no signing keys are published", http.StatusNotFound)
			return
		}
		publisher, ok := s.codec.Signer().(token.KeySetPublisher)
		if !ok {
			writeJSONError(w, "not_found", "no signing keys are published", http.StatusNotFound)
			return
		}
		jwks, err := publisher.KeySet()
		if err != nil {
			log.Err(err).Msg("failed to build JWKS")
			writeJSONError(w, oauthmodel.ErrorServerError, "failed to build key set", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, jwks, "public, max-age=3600")
	}
}

// Token exchanges an authorization code for an access token.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenResponse, err := s.coordinator.Exchange(r.Context(), oauthmodel.ParseTokenRequest(r.PostForm))
		if err != nil {
			writeOAuthError(w, err)
			return
		}

		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenResponse, "no-store")
	}
}

// Register implements RFC 7591 dynamic client registration for public clients.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clients.RegistrationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBody)).Decode(&req); err != nil {
			writeJSONError(w, oauthmodel.ErrorInvalidClientMetadata, "request body must be a JSON client metadata document", http.StatusBadRequest)
			return
		}

		client, err := clients.NewClient(req, time.Now())
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		if err := s.clients.Upsert(client); err != nil {
			log.Err(err).Msg("failed to store registered client")
			writeJSONError(w, oauthmodel.ErrorServerError, "failed to store client", http.StatusInternalServerError)
			return
		}

		log.Info().Str("client_id", client.ID).Str("client_name", client.Name).Strs("redirect_uris", client.RedirectURIs).Msg("client registered")
		writeJSON(w, http.StatusCreated, client.Response(), "no-store")
	}
}

// Revoke implements RFC 7009 for public clients. It answers 200 whether or not
// the token was known.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}
		raw := r.PostForm.Get("token")
		if raw == "" {
			writeJSONError(w, oauthmodel.ErrorInvalidRequest, "token parameter is required", http.StatusBadRequest)
			return
		}

		switch {
		case token.LooksLikeSelfDescribingToken(raw):
			if s.codec.Revoke(raw, s.coordinator.SupportedResources()...) {
				log.Info().Msg("access token revoked")
			}
		case s.legacy != nil:
			s.legacy.Revoke(raw)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, v any, cacheControl string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := oauthmodel.AsError(err)
	if oauthErr.Code == oauthmodel.ErrorServerError {
		log.Err(err).Msg("request failed")
	}
	status := oauthErr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSONError(w, oauthErr.Code, oauthErr.Description, status)
}
