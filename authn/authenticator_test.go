package authn_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/resource"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/stretchr/testify/require"
)

const (
	baseURI      = "https://mcp.example.com"
	metadataURL  = baseURI + "/.well-known/oauth-protected-resource"
	staticToken  = "static-shared-secret"
	cookieSecret = "cookie-signing-secret"
	hmacSecret   = "0123456789abcdef0123456789abcdef"
)

type fixture struct {
	now           time.Time
	codec         *token.Codec
	legacy        *token.InMemoryLegacyTokenStore
	store         *sessions.InMemoryStore
	cookie        *authn.SessionCookie
	authenticator *authn.Authenticator
}

func setup(t *testing.T, cfg authn.Config) *fixture {
	t.Helper()

	f := &fixture{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		store:  sessions.NewInMemoryStore(),
		cookie: authn.NewSessionCookie(cookieSecret, true),
	}
	nowFunc := func() time.Time { return f.now }

	var err error
	f.codec, err = token.NewCodec(token.NewHMACSigner(hmacSecret), baseURI, token.WithNowFunc(nowFunc))
	require.NoError(t, err)
	f.legacy = token.NewInMemoryLegacyTokenStore(nowFunc)

	if cfg.ResourceMetadataURL == "" {
		cfg.ResourceMetadataURL = metadataURL
	}
	f.authenticator = authn.NewAuthenticator(cfg,
		authn.WithCodec(f.codec),
		authn.WithLegacyTokens(f.legacy),
		authn.WithSessionCookie(f.cookie, f.store),
	)
	return f
}

func bearerRequest(raw string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if raw != "" {
		r.Header.Set("Authorization", "Bearer "+raw)
	}
	return r
}

func requireFailure(t *testing.T, err error) *authn.Failure {
	t.Helper()
	require.Error(t, err)
	failure, ok := err.(*authn.Failure)
	require.True(t, ok, "expected *authn.Failure, got %T", err)
	require.Contains(t, failure.Challenge, `resource_metadata="`+metadataURL+`"`)
	return failure
}

func TestAuthenticator_Open(t *testing.T) {
	f := setup(t, authn.Config{Open: true})
	identity, err := f.authenticator.Authenticate(bearerRequest("garbage"))
	require.NoError(t, err)
	require.Equal(t, authn.MethodOpen, identity.Method)
	require.True(t, identity.Principal.IsAnonymous())
	require.Equal(t, "mcp:tools", identity.Scope)
}

func TestAuthenticator_StaticToken(t *testing.T) {
	f := setup(t, authn.Config{StaticToken: staticToken})

	identity, err := f.authenticator.Authenticate(bearerRequest(staticToken))
	require.NoError(t, err)
	require.Equal(t, authn.MethodStatic, identity.Method)
	require.Equal(t, "mcp:tools lm:admin", identity.Scope)

	_, err = f.authenticator.Authenticate(bearerRequest(staticToken + "x"))
	failure := requireFailure(t, err)
	require.Equal(t, "invalid_token", failure.Code)
}

func TestAuthenticator_SelfDescribingToken(t *testing.T) {
	f := setup(t, authn.Config{Audiences: []string{baseURI, "https://alt.example.com"}})

	issue := func(t *testing.T, aud ...string) string {
		t.Helper()
		raw, _, err := f.codec.Issue(token.IssueRequest{
			Subject:   "user-1",
			Audience:  resource.Audience(aud),
			Scope:     "mcp:tools lm:alerts:read",
			ClientID:  "client-1",
			SessionID: "session-1",
			Principal: &users.Principal{ID: "user-1", Email: "john.doe@example.com"},
		})
		require.NoError(t, err)
		return raw
	}

	t.Run("valid for base uri", func(t *testing.T) {
		identity, err := f.authenticator.Authenticate(bearerRequest(issue(t, baseURI+"/")))
		require.NoError(t, err)
		require.Equal(t, authn.MethodJWT, identity.Method)
		require.Equal(t, "john.doe@example.com", identity.Principal.Email)
		require.Equal(t, "session-1", identity.SessionID)
		require.Equal(t, "client-1", identity.ClientID)
		require.Equal(t, "mcp:tools lm:alerts:read", identity.Scope)
	})

	t.Run("valid for alternate resource", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(bearerRequest(issue(t, "https://alt.example.com")))
		require.NoError(t, err)
	})

	t.Run("audience mismatch is distinct", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(bearerRequest(issue(t, "https://other.example.com")))
		failure := requireFailure(t, err)
		require.Equal(t, token.ReasonAudienceMismatch, failure.Reason)
		require.Contains(t, failure.Description, "resource="+baseURI)
	})

	t.Run("expired", func(t *testing.T) {
		raw := issue(t, baseURI)
		f.now = f.now.Add(2 * time.Hour)
		defer func() { f.now = f.now.Add(-2 * time.Hour) }()

		_, err := f.authenticator.Authenticate(bearerRequest(raw))
		failure := requireFailure(t, err)
		require.Equal(t, token.ReasonExpired, failure.Reason)
	})

	t.Run("tampered", func(t *testing.T) {
		raw := issue(t, baseURI)
		_, err := f.authenticator.Authenticate(bearerRequest(raw[:len(raw)-2] + "xx"))
		failure := requireFailure(t, err)
		require.Equal(t, token.ReasonSignature, failure.Reason)
	})
}

func TestAuthenticator_LegacyToken(t *testing.T) {
	f := setup(t, authn.Config{})
	legacy, err := f.legacy.Issue(&users.Principal{ID: "user-2"}, "mcp:tools lm:read", time.Hour)
	require.NoError(t, err)

	identity, err := f.authenticator.Authenticate(bearerRequest(legacy.Token))
	require.NoError(t, err)
	require.Equal(t, authn.MethodLegacy, identity.Method)
	require.Equal(t, "user-2", identity.Principal.ID)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.authenticator.Authenticate(bearerRequest(legacy.Token))
	requireFailure(t, err)
}

func TestAuthenticator_SessionCookie(t *testing.T) {
	f := setup(t, authn.Config{})
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, &sessions.UpstreamSession{
		ID:        "session-9",
		Principal: &users.Principal{ID: "user-9"},
	}))

	t.Run("signed cookie wins over a bad bearer", func(t *testing.T) {
		r := bearerRequest("garbage")
		r.AddCookie(&http.Cookie{Name: authn.DefaultSessionCookieName, Value: f.cookie.Encode("session-9")})
		identity, err := f.authenticator.Authenticate(r)
		require.NoError(t, err)
		require.Equal(t, authn.MethodSession, identity.Method)
		require.Equal(t, "user-9", identity.Principal.ID)
		require.Equal(t, "session-9", identity.SessionID)
	})

	t.Run("forged cookie is ignored", func(t *testing.T) {
		r := bearerRequest("")
		r.AddCookie(&http.Cookie{Name: authn.DefaultSessionCookieName, Value: "session-9.forged"})
		_, err := f.authenticator.Authenticate(r)
		failure := requireFailure(t, err)
		require.Empty(t, failure.Code)
	})

	t.Run("deleted session", func(t *testing.T) {
		require.NoError(t, f.store.Delete(ctx, "session-9"))
		r := bearerRequest("")
		r.AddCookie(&http.Cookie{Name: authn.DefaultSessionCookieName, Value: f.cookie.Encode("session-9")})
		_, err := f.authenticator.Authenticate(r)
		requireFailure(t, err)
	})
}

func TestAuthenticator_Middleware(t *testing.T) {
	f := setup(t, authn.Config{StaticToken: staticToken})

	var seen *authn.Identity
	handler := f.authenticator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = authn.IdentityFromContext(r.Context())
		require.Equal(t, "mcp:tools lm:admin", authn.ScopeFromContext(r.Context()))
		require.NotNil(t, authn.PrincipalFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("authorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest(staticToken))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest(""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t,
			`Bearer realm="mcp", resource_metadata="`+metadataURL+`", scope="mcp:tools", error_description="bearer token required"`,
			rec.Header().Get("WWW-Authenticate"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, metadataURL, body["resource_metadata"])
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest("nope"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	})
}

func TestAuthenticator_UnauthorizedBody(t *testing.T) {
	const authServerURL = baseURI + "/.well-known/oauth-authorization-server"
	f := setup(t, authn.Config{Audiences: []string{baseURI}, AuthorizationServerURL: authServerURL})
	handler := f.authenticator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	issue := func(t *testing.T, aud string) string {
		t.Helper()
		raw, _, err := f.codec.Issue(token.IssueRequest{
			Subject:  "user-1",
			Audience: resource.Audience([]string{aud}),
			Scope:    "mcp:tools",
		})
		require.NoError(t, err)
		return raw
	}
	reject := func(t *testing.T, raw string) map[string]string {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest(raw))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "invalid_token", body["error"])
		require.Equal(t, metadataURL, body["resource_metadata"])
		require.Equal(t, authServerURL, body["authorization_server"])
		return body
	}

	t.Run("audience mismatch", func(t *testing.T) {
		body := reject(t, issue(t, "https://other.example.com"))
		require.Equal(t, string(token.ReasonAudienceMismatch), body["reason"])
	})

	t.Run("expired", func(t *testing.T) {
		raw := issue(t, baseURI)
		f.now = f.now.Add(48 * time.Hour)
		defer func() { f.now = f.now.Add(-48 * time.Hour) }()

		body := reject(t, raw)
		require.Equal(t, string(token.ReasonExpired), body["reason"])
	})

	t.Run("missing token has no reason", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest(""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.NotContains(t, body, "reason")
	})
}

func TestBuildWWWAuthenticate(t *testing.T) {
	require.Equal(t, "Bearer", authn.BuildWWWAuthenticate(authn.Challenge{}))
	require.Equal(t,
		`Bearer realm="mcp", resource_metadata="https://a/.well-known/oauth-protected-resource", scope="mcp:tools", error="invalid_token", error_description="say \"hi\""`,
		authn.BuildWWWAuthenticate(authn.Challenge{
			Realm:            "mcp",
			ResourceMetadata: "https://a/.well-known/oauth-protected-resource",
			Scope:            "mcp:tools",
			Error:            "invalid_token",
			ErrorDescription: `say "hi"`,
		}))
}

func TestSessionCookie(t *testing.T) {
	cookie := authn.NewSessionCookie(cookieSecret, false)
	id, ok := cookie.Decode(cookie.Encode("abc.def"))
	require.True(t, ok)
	require.Equal(t, "abc.def", id)

	other := authn.NewSessionCookie("another-secret", false)
	_, ok = other.Decode(cookie.Encode("abc"))
	require.False(t, ok)

	_, ok = cookie.Decode("no-signature")
	require.False(t, ok)

	rec := httptest.NewRecorder()
	cookie.Set(rec, "abc", 60)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	id, ok = cookie.Read(r)
	require.True(t, ok)
	require.Equal(t, "abc", id)
}
