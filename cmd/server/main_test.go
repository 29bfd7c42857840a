package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/server"
	"github.com/stretchr/testify/require"
)

func TestScopesCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"scopes"})
	require.NoError(t, cmd.Execute())

	require.Contains(t, out.String(), "acknowledge_alert")
	require.Contains(t, out.String(), "lm:alerts:write")
	require.Contains(t, out.String(), "mcp:tools")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, version+"\n", out.String())
}

func customProviderConfig() config.Config {
	cfg := config.Default()
	cfg.Provider.Kind = "custom"
	cfg.Provider.ClientID = "client"
	cfg.Provider.AuthURL = "https://idp.example.com/authorize"
	cfg.Provider.TokenURL = "https://idp.example.com/token"
	cfg.Provider.UserInfoURL = "https://idp.example.com/userinfo"
	cfg.Security.SessionSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestNewGateway(t *testing.T) {
	t.Run("open mode", func(t *testing.T) {
		g, err := newGateway(context.Background(), config.Default())
		require.NoError(t, err)
		defer g.close()

		require.Nil(t, g.coordinator)
		require.True(t, g.authenticator.Open())

		_, err = g.httpServer()
		require.NoError(t, err)
	})

	t.Run("static token", func(t *testing.T) {
		cfg := config.Default()
		cfg.Security.APIToken = "shared-secret"
		g, err := newGateway(context.Background(), cfg)
		require.NoError(t, err)
		defer g.close()

		require.False(t, g.authenticator.Open())
		identity, err := g.authenticator.AuthenticateBearer(context.Background(), "shared-secret")
		require.NoError(t, err)
		require.Contains(t, identity.Scope, "mcp:tools")

		_, err = g.authenticator.AuthenticateBearer(context.Background(), "wrong")
		require.Error(t, err)
	})

	t.Run("custom provider", func(t *testing.T) {
		cfg := customProviderConfig()
		g, err := newGateway(context.Background(), cfg)
		require.NoError(t, err)
		defer g.close()

		require.NotNil(t, g.coordinator)
		require.Equal(t, []string{"http://localhost:8080"}, g.coordinator.SupportedResources())

		h, err := g.httpServer()
		require.NoError(t, err)
		require.NotNil(t, h)
		require.Equal(t, "http://localhost:8080"+server.RouteAuthCallback, cfg.CallbackURL())
	})
}

func TestGatewayRegisteredRedirects(t *testing.T) {
	g, err := newGateway(context.Background(), customProviderConfig())
	require.NoError(t, err)
	defer g.close()

	h, err := g.httpServer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	body := `{"client_name":"desktop","redirect_uris":["https://good.example.com/cb"]}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered struct {
		ClientID string `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	require.NotEmpty(t, registered.ClientID)

	login := func(redirectURI string) *httptest.ResponseRecorder {
		query := url.Values{
			"response_type":         {"code"},
			"client_id":             {registered.ClientID},
			"redirect_uri":          {redirectURI},
			"state":                 {"client-state"},
			"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
			"code_challenge_method": {"S256"},
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteAuthLogin+"?"+query.Encode(), nil))
		return rec
	}

	t.Run("unregistered redirect", func(t *testing.T) {
		rec := login("https://evil.example.com/cb")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, rec.Header().Get("Location"))

		var failure map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
		require.Equal(t, "invalid_redirect_uri", failure["error"])
	})

	t.Run("registered redirect", func(t *testing.T) {
		rec := login("https://good.example.com/cb")
		require.Equal(t, http.StatusFound, rec.Code)
		target, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "idp.example.com", target.Host)
	})
}
