// Package authn is the request authenticator: the single gate every MCP request
// passes before any tool runs. It resolves who is calling and with which scope.
package authn

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/rs/zerolog/log"
)

type Method string

const (
	MethodOpen    Method = "open"
	MethodSession Method = "session"
	MethodStatic  Method = "static"
	MethodJWT     Method = "jwt"
	MethodLegacy  Method = "legacy"
)

// Identity is the result of a successful authentication.
type Identity struct {
	Principal *users.Principal
	Scope     string
	Method    Method
	SessionID string // upstream session, when known
	ClientID  string
}

// Failure is a rejected authentication. It carries everything needed for the 401.
type Failure struct {
	Code        string // empty when no credentials were presented
	Description string
	Reason      token.Reason
	Challenge   string
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return "authentication required"
	}
	return f.Code + ": " + f.Description
}

// SessionResolver looks up upstream sessions for browser session cookies.
type SessionResolver interface {
	Get(ctx context.Context, sessionID string) (*sessions.UpstreamSession, error)
}

// Config selects which authentication paths are active.
type Config struct {
	// Open disables authentication. Every request runs as the anonymous principal with BaselineScope.
	Open bool
	// BaselineScope is granted in open mode and to browser sessions.
	BaselineScope string
	// StaticToken is a shared secret accepted as a bearer token.
	StaticToken string
	// StaticScope is granted to StaticToken callers.
	StaticScope string
	// Audiences are the resources a self-describing token must be bound to, base URI first.
	Audiences []string
	// Realm and ResourceMetadataURL populate the challenge header.
	Realm               string
	ResourceMetadataURL string
	// AuthorizationServerURL is the authorization server metadata document,
	// reported in 401 bodies so clients can start a login without a second lookup.
	AuthorizationServerURL string
}

type Authenticator struct {
	cfg      Config
	codec    *token.Codec
	legacy   token.LegacyTokenStore
	sessions SessionResolver
	cookie   *SessionCookie
	metrics  *metrics.Metrics
}

type Option func(*Authenticator)

func WithCodec(codec *token.Codec) Option {
	return func(a *Authenticator) {
		a.codec = codec
	}
}

func WithLegacyTokens(store token.LegacyTokenStore) Option {
	return func(a *Authenticator) {
		a.legacy = store
	}
}

// WithSessionCookie enables browser session authentication.
func WithSessionCookie(cookie *SessionCookie, resolver SessionResolver) Option {
	return func(a *Authenticator) {
		a.cookie = cookie
		a.sessions = resolver
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

func NewAuthenticator(cfg Config, options ...Option) *Authenticator {
	if cfg.BaselineScope == "" {
		cfg.BaselineScope = scopes.ToolAccess
	}
	if cfg.StaticScope == "" {
		cfg.StaticScope = scopes.ToolAccess + " " + scopes.GlobalAdmin
	}
	if cfg.Realm == "" {
		cfg.Realm = "mcp"
	}
	a := &Authenticator{cfg: cfg}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Open reports whether authentication is disabled.
func (a *Authenticator) Open() bool {
	return a.cfg.Open
}

// Authenticate resolves the caller of r. The first matching path wins: open
// mode, browser session cookie, static token, self-describing token, legacy
// opaque token. A *Failure is returned when none match.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if a.cfg.Open {
		return a.succeed(a.openIdentity()), nil
	}

	if identity := a.sessionIdentity(r); identity != nil {
		return a.succeed(identity), nil
	}

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, a.fail(MethodOpen, &Failure{Description: "bearer token required"})
	}
	return a.AuthenticateBearer(r.Context(), raw)
}

// AuthenticateBearer runs the token based paths for a raw bearer value. It is
// also used by transports that carry credentials outside HTTP headers.
func (a *Authenticator) AuthenticateBearer(_ context.Context, raw string) (*Identity, error) {
	if a.cfg.Open {
		return a.succeed(a.openIdentity()), nil
	}
	if raw == "" {
		return nil, a.fail(MethodOpen, &Failure{Description: "bearer token required"})
	}

	if a.cfg.StaticToken != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(a.cfg.StaticToken)) == 1 {
		return a.succeed(&Identity{
			Principal: &users.Principal{ID: "static-token", Name: "API token"},
			Scope:     a.cfg.StaticScope,
			Method:    MethodStatic,
		}), nil
	}

	if a.codec != nil && token.LooksLikeSelfDescribingToken(raw) {
		return a.verifySelfDescribing(raw)
	}

	if a.legacy != nil {
		if legacy, ok := a.legacy.Lookup(raw); ok {
			return a.succeed(&Identity{
				Principal: legacy.Principal,
				Scope:     legacy.Scope,
				Method:    MethodLegacy,
			}), nil
		}
	}

	return nil, a.fail(MethodLegacy, &Failure{
		Code:        oauthmodel.ErrorInvalidToken,
		Description: "the access token is not recognised or has expired",
	})
}

func (a *Authenticator) verifySelfDescribing(raw string) (*Identity, error) {
	audiences := a.cfg.Audiences
	if len(audiences) == 0 {
		audiences = []string{a.codec.Issuer()}
	}

	result := a.codec.Verify(raw, audiences...)
	if !result.Valid {
		a.metrics.VerificationFailed(string(result.Reason))
		failure := &Failure{
			Code:        oauthmodel.ErrorInvalidToken,
			Reason:      result.Reason,
			Description: describeReason(result.Reason, audiences[0]),
		}
		return nil, a.fail(MethodJWT, failure)
	}

	claims := result.Claims
	principal := claims.Principal
	if principal == nil {
		principal = &users.Principal{ID: claims.Subject}
	}
	return a.succeed(&Identity{
		Principal: principal,
		Scope:     claims.Scope,
		Method:    MethodJWT,
		SessionID: claims.SessionID,
		ClientID:  claims.ClientID,
	}), nil
}

func (a *Authenticator) sessionIdentity(r *http.Request) *Identity {
	if a.cookie == nil || a.sessions == nil {
		return nil
	}
	sessionID, ok := a.cookie.Read(r)
	if !ok {
		return nil
	}
	session, err := a.sessions.Get(r.Context(), sessionID)
	if err != nil {
		log.Debug().Err(err).Str("session", sessionID).Msg("session cookie does not resolve")
		return nil
	}
	return &Identity{
		Principal: session.Principal,
		Scope:     a.cfg.BaselineScope,
		Method:    MethodSession,
		SessionID: session.ID,
	}
}

func (a *Authenticator) openIdentity() *Identity {
	return &Identity{
		Principal: users.Anonymous(),
		Scope:     a.cfg.BaselineScope,
		Method:    MethodOpen,
	}
}

func (a *Authenticator) succeed(identity *Identity) *Identity {
	a.metrics.Authenticated(string(identity.Method), "success")
	return identity
}

func (a *Authenticator) fail(method Method, failure *Failure) *Failure {
	a.metrics.Authenticated(string(method), "failure")
	failure.Challenge = BuildWWWAuthenticate(Challenge{
		Realm:            a.cfg.Realm,
		ResourceMetadata: a.cfg.ResourceMetadataURL,
		Scope:            a.cfg.BaselineScope,
		Error:            failure.Code,
		ErrorDescription: failure.Description,
	})
	return failure
}

func describeReason(reason token.Reason, baseURI string) string {
	switch reason {
	case token.ReasonAudienceMismatch:
		return fmt.Sprintf("the access token is not intended for %s; request a token with resource=%s", baseURI, baseURI)
	case token.ReasonExpired:
		return "the access token expired"
	case token.ReasonIssuerMismatch:
		return "the access token was issued by another server"
	case token.ReasonRevoked:
		return "the access token was revoked"
	default:
		return "the access token is malformed or its signature is invalid"
	}
}

// Middleware authenticates every request and attaches the identity to its
// context. Rejected requests get a 401 with the challenge header; the body
// carries the failure reason and the discovery metadata locations.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r)
		if err != nil {
			a.WriteUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WriteUnauthorized renders err as a 401 response.
func (a *Authenticator) WriteUnauthorized(w http.ResponseWriter, err error) {
	failure, ok := err.(*Failure)
	if !ok {
		failure = a.fail(MethodOpen, &Failure{Code: oauthmodel.ErrorInvalidToken, Description: err.Error()})
	}

	code := failure.Code
	if code == "" {
		code = "unauthorized"
	}
	body := map[string]string{
		"error":             code,
		"error_description": failure.Description,
	}
	if failure.Reason != token.ReasonNone {
		body["reason"] = string(failure.Reason)
	}
	if a.cfg.ResourceMetadataURL != "" {
		body["resource_metadata"] = a.cfg.ResourceMetadataURL
	}
	if a.cfg.AuthorizationServerURL != "" {
		body["authorization_server"] = a.cfg.AuthorizationServerURL
	}

	w.Header().Set("WWW-Authenticate", failure.Challenge)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}
