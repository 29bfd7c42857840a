package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/auth"
	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/clients"
	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
	"github.com/jrsteele09/lm-mcp-gateway/server"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/stretchr/testify/require"
)

const (
	baseURL           = "https://mcp.example.com"
	hmacSecret        = "0123456789abcdef0123456789abcdef"
	staticToken       = "static-shared-secret"
	testClientID      = "test-client-1"
	testRedirectURI   = "http://localhost:3000/callback"
	testState         = "client-state"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type fakeUpstream struct{}

func (fakeUpstream) Kind() string { return "google" }

func (fakeUpstream) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (fakeUpstream) Exchange(_ context.Context, code string) (*users.Principal, sessions.Credentials, error) {
	return &users.Principal{ID: "user-1", Name: "John Doe", Email: "john.doe@example.com"},
		sessions.Credentials{AccessToken: "upstream-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

type noRefreshers struct{}

func (noRefreshers) Refresher(string) (sessions.Refresher, bool) { return nil, false }

type testFixture struct {
	server    *server.Server
	store     *sessions.InMemoryStore
	codec     *token.Codec
	legacy    *token.InMemoryLegacyTokenStore
	clients   *clients.InMemoryRepo
	scheduler *sessions.Scheduler
}

// setupOAuth builds a server with an upstream provider configured.
func setupOAuth(t *testing.T) *testFixture {
	t.Helper()

	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.Provider.Kind = "google"
	cfg.Cors.Origins = []string{"https://app.example.com"}

	f := &testFixture{
		store:   sessions.NewInMemoryStore(),
		legacy:  token.NewInMemoryLegacyTokenStore(time.Now),
		clients: clients.NewInMemoryRepo(),
	}

	var err error
	f.scheduler, err = sessions.NewScheduler(f.store, noRefreshers{})
	require.NoError(t, err)
	t.Cleanup(f.scheduler.Stop)

	f.codec, err = token.NewCodec(token.NewHMACSigner(hmacSecret), baseURL)
	require.NoError(t, err)

	coordinator, err := auth.NewCoordinator(fakeUpstream{}, f.scheduler, auth.NewInMemoryCodeStore(time.Now), f.codec,
		auth.WithLegacyTokens(f.legacy),
		auth.WithClients(f.clients),
	)
	require.NoError(t, err)

	cookie := authn.NewSessionCookie(hmacSecret, true)
	authenticator := authn.NewAuthenticator(authn.Config{
		Audiences:              coordinator.SupportedResources(),
		ResourceMetadataURL:    baseURL + server.RouteWellKnownProtectedResource,
		AuthorizationServerURL: baseURL + server.RouteWellKnownAuthServer,
	},
		authn.WithCodec(f.codec),
		authn.WithLegacyTokens(f.legacy),
		authn.WithSessionCookie(cookie, f.scheduler),
	)

	f.server, err = server.New(server.Options{
		Config:        cfg,
		Version:       "test",
		Authenticator: authenticator,
		Coordinator:   coordinator,
		Codec:         f.codec,
		Legacy:        f.legacy,
		Clients:       f.clients,
		Sessions:      f.scheduler,
		Cookie:        cookie,
		MCP:           mcpserver.New("test", tools.NewGate(nil), tools.NewDispatcher(nil, f.scheduler)),
		Metrics:       metrics.New(),
	})
	require.NoError(t, err)
	return f
}

// setupOpen builds a server with no provider and no static token.
func setupOpen(t *testing.T) *server.Server {
	t.Helper()

	cfg := config.Default()
	cfg.BaseURL = baseURL
	s, err := server.New(server.Options{
		Config:        cfg,
		Version:       "test",
		Authenticator: authn.NewAuthenticator(authn.Config{Open: true}),
		MCP:           mcpserver.New("test", tools.NewGate(nil), tools.NewDispatcher(nil, nil)),
	})
	require.NoError(t, err)
	return s
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func loginQuery() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"state":                 {testState},
		"code_challenge":        {testCodeChallenge},
		"code_challenge_method": {"S256"},
		"scope":                 {"mcp:tools lm:alerts:read"},
		"resource":              {baseURL},
	}
}

// login drives /auth/login and /auth/callback and returns the callback response.
func (f *testFixture) login(t *testing.T, query url.Values) *httptest.ResponseRecorder {
	t.Helper()

	rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+query.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	upstream, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.example.com", upstream.Host)

	callback := url.Values{"code": {"upstream-code"}, "state": {upstream.Query().Get("state")}}
	return serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthCallback+"?"+callback.Encode(), nil))
}

func exchange(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(h, req)
}

func TestDiscovery(t *testing.T) {
	f := setupOAuth(t)

	t.Run("protected resource metadata", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteWellKnownProtectedResource, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec)
		require.Equal(t, baseURL, body["resource"])
		require.Equal(t, []any{baseURL}, body["authorization_servers"])
		require.Contains(t, body["scopes_supported"], "mcp:tools")
	})

	t.Run("path suffixed protected resource metadata", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteWellKnownProtectedResource+"/mcp", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authorization server metadata", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteWellKnownAuthServer, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec)
		require.Equal(t, baseURL, body["issuer"])
		require.Equal(t, baseURL+server.RouteAuthLogin, body["authorization_endpoint"])
		require.Equal(t, baseURL+server.RouteToken, body["token_endpoint"])
		require.Equal(t, baseURL+server.RouteRegister, body["registration_endpoint"])
		require.Equal(t, []any{"S256"}, body["code_challenge_methods_supported"])
		require.Equal(t, []any{"none"}, body["token_endpoint_auth_methods_supported"])
		require.NotContains(t, body, "jwks_uri")
	})

	t.Run("hmac signer publishes no keys", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRegister(t *testing.T) {
	f := setupOAuth(t)

	t.Run("public client", func(t *testing.T) {
		body := `{"client_name":"Claude","redirect_uris":["http://localhost:3000/callback"]}`
		rec := serve(f.server, httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		resp := decodeJSON(t, rec)
		clientID, _ := resp["client_id"].(string)
		require.NotEmpty(t, clientID)
		require.Equal(t, "none", resp["token_endpoint_auth_method"])

		stored, err := f.clients.Get(clientID)
		require.NoError(t, err)
		require.Equal(t, []string{"http://localhost:3000/callback"}, stored.RedirectURIs)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader("{")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_client_metadata", decodeJSON(t, rec)["error"])
	})

	t.Run("missing redirect uris", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader(`{"client_name":"x"}`)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginRejections(t *testing.T) {
	f := setupOAuth(t)

	t.Run("unsupported resource is reported to the client", func(t *testing.T) {
		query := loginQuery()
		query.Set("resource", "https://evil.example.com")
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)

		target, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "localhost:3000", target.Host)
		require.Equal(t, "invalid_target", target.Query().Get("error"))
		require.Equal(t, testState, target.Query().Get("state"))
	})

	t.Run("untrusted redirect is not followed", func(t *testing.T) {
		query := loginQuery()
		query.Set("redirect_uri", "not a url#frag")
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+query.Encode(), nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("login pages cannot be framed", func(t *testing.T) {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+loginQuery().Encode(), nil))
		require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupOAuth(t)

	rec := f.login(t, loginQuery())
	require.Equal(t, http.StatusFound, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "localhost:3000", redirect.Host)
	require.Equal(t, testState, redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"code_verifier": {testCodeVerifier},
		"redirect_uri":  {testRedirectURI},
		"resource":      {baseURL},
	}
	rec = exchange(t, f.server, form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	resp := decodeJSON(t, rec)
	accessToken, _ := resp["access_token"].(string)
	require.NotEmpty(t, accessToken)
	require.Equal(t, "Bearer", resp["token_type"])
	require.Equal(t, "lm:alerts:read mcp:tools", resp["scope"])

	verified := f.codec.Verify(accessToken, baseURL)
	require.True(t, verified.Valid, verified.Reason)
	require.Equal(t, "user-1", verified.Claims.Subject)

	t.Run("code cannot be reused", func(t *testing.T) {
		rec := exchange(t, f.server, form)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_grant", decodeJSON(t, rec)["error"])
	})

	t.Run("token reaches the MCP endpoint", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"1.0.0"}}}`
		req := httptest.NewRequest(http.MethodPost, server.RouteMCP, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		rec := serve(f.server, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteRevoke, strings.NewReader(url.Values{"token": {accessToken}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, http.StatusOK, serve(f.server, req).Code)
		require.Equal(t, token.ReasonRevoked, f.codec.Verify(accessToken, baseURL).Reason)
	})
}

func TestCallback(t *testing.T) {
	t.Run("upstream error is relayed to the client", func(t *testing.T) {
		f := setupOAuth(t)
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+loginQuery().Encode(), nil))
		upstream, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)

		callback := url.Values{"error": {"access_denied"}, "state": {upstream.Query().Get("state")}}
		rec = serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthCallback+"?"+callback.Encode(), nil))
		require.Equal(t, http.StatusFound, rec.Code)

		target, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "access_denied", target.Query().Get("error"))
		require.Equal(t, testState, target.Query().Get("state"))
	})

	t.Run("forged state", func(t *testing.T) {
		f := setupOAuth(t)
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteAuthCallback+"?code=x&state=!!bad!!", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("display code page", func(t *testing.T) {
		f := setupOAuth(t)
		query := loginQuery()
		query.Set("display", "code")
		rec := f.login(t, query)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		require.Contains(t, rec.Body.String(), "John Doe")
	})

	t.Run("direct login shows an opaque token", func(t *testing.T) {
		f := setupOAuth(t)
		rec := f.login(t, url.Values{"scope": {"mcp:tools"}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `id="token"`)
	})
}

func TestLogout(t *testing.T) {
	f := setupOAuth(t)
	rec := f.login(t, loginQuery())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	ctx := context.Background()
	list, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogout, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = serve(f.server, req)
	require.Equal(t, http.StatusOK, rec.Code)

	list, err = f.store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMCPRequiresAuthentication(t *testing.T) {
	f := setupOAuth(t)

	for _, route := range []string{server.RouteMCP, server.RouteMessage} {
		t.Run(route, func(t *testing.T) {
			rec := serve(f.server, httptest.NewRequest(http.MethodPost, route, strings.NewReader("{}")))
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			challenge := rec.Header().Get("WWW-Authenticate")
			require.True(t, strings.HasPrefix(challenge, "Bearer "), challenge)
			require.Contains(t, challenge, `resource_metadata="`+baseURL+server.RouteWellKnownProtectedResource+`"`)
		})
	}

	t.Run("legacy token", func(t *testing.T) {
		legacy, err := f.legacy.Issue(&users.Principal{ID: "user-2"}, "mcp:tools", time.Hour)
		require.NoError(t, err)

		body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"1.0.0"}}}`
		req := httptest.NewRequest(http.MethodPost, server.RouteMCP, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+legacy.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		require.Equal(t, http.StatusOK, serve(f.server, req).Code)
	})
}

func TestOpenMode(t *testing.T) {
	s := setupOpen(t)

	for _, route := range []string{server.RouteWellKnownAuthServer, server.RouteAuthLogin, server.RouteAuthCallback} {
		t.Run(route+" is not served", func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, route, nil))
			require.Equal(t, http.StatusNotFound, rec.Code)
		})
	}

	t.Run("protected resource metadata has no authorization servers", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, server.RouteWellKnownProtectedResource, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotContains(t, decodeJSON(t, rec), "authorization_servers")
	})

	t.Run("health", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec)
		require.Equal(t, "ok", body["status"])
		require.Equal(t, "open", body["auth_mode"])
		require.Equal(t, "test", body["version"])
	})
}

func TestHealthReportsOAuth(t *testing.T) {
	f := setupOAuth(t)
	rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	body := decodeJSON(t, rec)
	require.Equal(t, "oauth", body["auth_mode"])
	require.Equal(t, "google", body["provider"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupOAuth(t)
	rec := serve(f.server, httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCors(t *testing.T) {
	f := setupOAuth(t)

	t.Run("allowed origin preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteToken, nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := serve(f.server, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "WWW-Authenticate")
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteToken, nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := serve(f.server, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
