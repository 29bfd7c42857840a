// Package auth coordinates the authorization flow: the downstream MCP client
// starts a login, the upstream identity provider authenticates the user, and
// the client exchanges the resulting one-time code for a bearer token bound to
// this service.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/clients"
	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	"github.com/jrsteele09/lm-mcp-gateway/resource"
	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Upstream is the identity provider strategy the coordinator delegates login to.
type Upstream interface {
	Kind() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*users.Principal, sessions.Credentials, error)
}

// SessionRegistrar records upstream sessions as soon as the upstream login completes.
type SessionRegistrar interface {
	Register(ctx context.Context, sessionID, providerKind string, principal *users.Principal, creds sessions.Credentials) (*sessions.UpstreamSession, error)
}

// CallbackResult is the outcome of a completed upstream login.
type CallbackResult struct {
	SessionID string
	Principal *users.Principal

	// Code and RedirectURL are set for PKCE logins. RedirectURL already carries
	// code and the downstream state.
	Code        string
	RedirectURL string
	DisplayCode bool

	// LegacyToken is set for direct logins that started without a redirect_uri.
	LegacyToken *token.LegacyToken
}

// Coordinator drives login, callback and code exchange.
type Coordinator struct {
	upstream           Upstream
	sessions           SessionRegistrar
	codes              CodeStore
	codec              *token.Codec
	legacy             token.LegacyTokenStore
	legacyLifetime     time.Duration
	clients            clients.Repo
	baseURI            string
	supportedResources []string
	defaultScope       string
	codeLifetime       time.Duration
	nowTime            func() time.Time
	metrics            *metrics.Metrics
	stateKey           []byte
	state              *stateSigner
}

type CoordinatorOption func(*Coordinator)

// WithSupportedResources adds resources beyond the base URI that tokens may be bound to.
func WithSupportedResources(uris ...string) CoordinatorOption {
	return func(c *Coordinator) {
		for _, uri := range uris {
			c.supportedResources = append(c.supportedResources, resource.Normalize(uri))
		}
	}
}

// WithDefaultScope sets the scope granted when a login requests none.
func WithDefaultScope(scope string) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaultScope = scope
	}
}

func WithCodeLifetime(lifetime time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.codeLifetime = lifetime
	}
}

// WithLegacyTokens enables direct logins that end in an opaque token.
func WithLegacyTokens(store token.LegacyTokenStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.legacy = store
	}
}

// WithStateSecret signs the upstream state with secret. Without it a random
// key is used, so logins in flight do not survive a restart or reach another instance.
func WithStateSecret(secret string) CoordinatorOption {
	return func(c *Coordinator) {
		c.stateKey = []byte(secret)
	}
}

// WithLegacyTokenLifetime sets how long direct login tokens live. It defaults
// to the access token lifetime.
func WithLegacyTokenLifetime(lifetime time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.legacyLifetime = lifetime
	}
}

// WithClients enforces registered redirect URIs for known client ids.
func WithClients(repo clients.Repo) CoordinatorOption {
	return func(c *Coordinator) {
		c.clients = repo
	}
}

func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func NewCoordinator(upstream Upstream, registrar SessionRegistrar, codes CodeStore, codec *token.Codec, options ...CoordinatorOption) (*Coordinator, error) {
	if upstream == nil {
		return nil, pkgerrors.New("[NewCoordinator] upstream provider is required")
	}
	if registrar == nil {
		return nil, pkgerrors.New("[NewCoordinator] session registrar is required")
	}
	if codes == nil {
		return nil, pkgerrors.New("[NewCoordinator] code store is required")
	}
	if codec == nil {
		return nil, pkgerrors.New("[NewCoordinator] token codec is required")
	}

	c := &Coordinator{
		upstream:     upstream,
		sessions:     registrar,
		codes:        codes,
		codec:        codec,
		baseURI:      codec.Issuer(),
		defaultScope: scopes.ToolAccess,
		codeLifetime: DefaultCodeLifetime,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.legacyLifetime <= 0 {
		c.legacyLifetime = codec.Lifetime()
	}
	if len(c.stateKey) == 0 {
		key, err := newRandomStateKey()
		if err != nil {
			return nil, err
		}
		c.stateKey = key
	}
	c.state = &stateSigner{key: c.stateKey, issuer: c.baseURI, lifetime: DefaultStateLifetime, nowFunc: c.nowTime}
	c.supportedResources = append([]string{c.baseURI}, c.supportedResources...)
	return c, nil
}

// BaseURI is the canonical resource and issuer of this service.
func (c *Coordinator) BaseURI() string {
	return c.baseURI
}

// SupportedResources lists every resource a token may be bound to, base URI first.
func (c *Coordinator) SupportedResources() []string {
	return slices.Clone(c.supportedResources)
}

// StartLogin validates the downstream parameters and returns where to send the
// browser: the upstream authorization URL, or the downstream redirect_uri with
// an OAuth error. An error is returned only when no redirect target can be trusted.
// The upstream is never contacted for a rejected login.
func (c *Coordinator) StartLogin(params *oauthmodel.LoginParameters) (string, error) {
	if c.isDirectLogin(params) {
		// No redirect target exists, so rejections are returned directly.
		params.Resources = resource.ParseResourceList(params.Resources)
		if err := resource.ValidateAgainstSupported(params.Resources, c.supportedResources); err != nil {
			return "", err
		}
		scope, err := c.grantedScope(params.Scope)
		if err != nil {
			return "", err
		}
		params.Scope = scope
		return c.delegate(params)
	}

	if err := params.ValidateRedirect(); err != nil {
		return "", oauthmodel.NewError(oauthmodel.ErrorInvalidRedirectURI, "redirect_uri is missing or malformed")
	}
	if err := c.checkClientRedirect(params.ClientID, params.RedirectURI); err != nil {
		return "", err
	}

	if err := params.ValidatePKCE(); err != nil {
		return ErrorRedirectURL(params.RedirectURI, params.State,
			oauthmodel.InvalidRequest("PKCE with code_challenge_method=S256 is required: %s", err.Error())), nil
	}

	params.Resources = resource.ParseResourceList(params.Resources)
	if err := resource.ValidateAgainstSupported(params.Resources, c.supportedResources); err != nil {
		return ErrorRedirectURL(params.RedirectURI, params.State, oauthmodel.AsError(err)), nil
	}

	scope, err := c.grantedScope(params.Scope)
	if err != nil {
		return ErrorRedirectURL(params.RedirectURI, params.State, oauthmodel.AsError(err)), nil
	}
	params.Scope = scope

	return c.delegate(params)
}

func (c *Coordinator) delegate(params *oauthmodel.LoginParameters) (string, error) {
	state, err := c.state.encode(params)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Coordinator.StartLogin]")
	}
	log.Debug().Str("client_id", params.ClientID).Strs("resources", params.Resources).Str("scope", params.Scope).
		Msg("delegating login upstream")
	return c.upstream.AuthCodeURL(state), nil
}

// A direct login carries neither a redirect_uri nor PKCE and ends in an opaque token.
func (c *Coordinator) isDirectLogin(params *oauthmodel.LoginParameters) bool {
	return c.legacy != nil && params.RedirectURI == "" && params.CodeChallenge == "" && params.CodeChallengeMethod == ""
}

func (c *Coordinator) checkClientRedirect(clientID, redirectURI string) error {
	if c.clients == nil || clientID == "" {
		return nil
	}
	client, err := c.clients.Get(clientID)
	if err != nil {
		// Unregistered clients may still log in with PKCE.
		return nil
	}
	if !client.AllowsRedirect(redirectURI) {
		return oauthmodel.NewError(oauthmodel.ErrorInvalidRedirectURI, "redirect_uri is not registered for client %s", clientID)
	}
	return nil
}

// grantedScope rejects scopes this service does not define.
func (c *Coordinator) grantedScope(requested string) (string, error) {
	set := scopes.Parse(requested)
	if len(set) == 0 {
		return c.defaultScope, nil
	}
	var unknown []string
	for _, s := range set.Slice() {
		if _, ok := scopes.Descriptions[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		return "", oauthmodel.InvalidScope("unknown scope(s): %s", strings.Join(unknown, " "))
	}
	return set.String(), nil
}

// HandleCallback completes the upstream login: the upstream code is exchanged,
// the session registered, and a one-time code (or a legacy token) minted.
func (c *Coordinator) HandleCallback(ctx context.Context, upstreamCode, state string) (*CallbackResult, error) {
	params, err := c.state.decode(state)
	if err != nil {
		log.Warn().Err(err).Msg("rejected upstream callback state")
		return nil, oauthmodel.InvalidRequest("state is missing or was not issued by this service")
	}
	if upstreamCode == "" {
		return nil, oauthmodel.InvalidRequest("code is required")
	}
	if err := c.checkCallbackParams(params); err != nil {
		return nil, err
	}

	principal, creds, err := c.upstream.Exchange(ctx, upstreamCode)
	if err != nil {
		log.Err(err).Str("provider", c.upstream.Kind()).Msg("upstream exchange failed")
		return nil, &oauthmodel.Error{Code: oauthmodel.ErrorAccessDenied, Description: "upstream login failed", Status: http.StatusBadGateway}
	}

	sessionID := sessions.NewSessionID()
	if _, err := c.sessions.Register(ctx, sessionID, c.upstream.Kind(), principal, creds); err != nil {
		return nil, pkgerrors.Wrap(err, "[Coordinator.HandleCallback] Register")
	}

	result := &CallbackResult{SessionID: sessionID, Principal: principal}

	if c.isDirectLogin(params) {
		legacy, err := c.legacy.Issue(principal, params.Scope, c.legacyLifetime)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[Coordinator.HandleCallback] legacy token")
		}
		result.LegacyToken = legacy
		return result, nil
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	now := c.nowTime()
	record := &CodeRecord{
		Code:                code,
		Principal:           principal,
		SessionID:           sessionID,
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		Scope:               params.Scope,
		Resources:           params.Resources,
		CreatedAt:           now,
		ExpiresAt:           now.Add(c.codeLifetime),
	}
	if err := c.codes.Save(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(err, "[Coordinator.HandleCallback] Save")
	}

	result.Code = code
	result.DisplayCode = params.Display == oauthmodel.DisplayCode
	result.RedirectURL = CodeRedirectURL(params.RedirectURI, code, params.State)
	return result, nil
}

// checkCallbackParams repeats the StartLogin checks on the decoded state, so
// no code is issued without PKCE or for a resource this service does not serve.
func (c *Coordinator) checkCallbackParams(params *oauthmodel.LoginParameters) error {
	if err := resource.ValidateAgainstSupported(params.Resources, c.supportedResources); err != nil {
		return err
	}
	if _, err := c.grantedScope(params.Scope); err != nil {
		return err
	}
	if c.isDirectLogin(params) {
		return nil
	}
	if err := params.ValidateRedirect(); err != nil {
		return oauthmodel.NewError(oauthmodel.ErrorInvalidRedirectURI, "redirect_uri is missing or malformed")
	}
	if err := c.checkClientRedirect(params.ClientID, params.RedirectURI); err != nil {
		return err
	}
	if err := params.ValidatePKCE(); err != nil {
		return oauthmodel.InvalidRequest("PKCE with code_challenge_method=S256 is required: %s", err.Error())
	}
	return nil
}

// CallbackErrorURL maps an upstream error callback onto the downstream redirect.
func (c *Coordinator) CallbackErrorURL(state, upstreamError, description string) (string, error) {
	params, err := c.state.decode(state)
	if err != nil || params.RedirectURI == "" {
		return "", oauthmodel.InvalidRequest("upstream login failed: %s", upstreamError)
	}
	if description == "" {
		description = upstreamError
	}
	return ErrorRedirectURL(params.RedirectURI, params.State,
		&oauthmodel.Error{Code: oauthmodel.ErrorAccessDenied, Description: description}), nil
}

// Exchange redeems an authorization code. Checks run in a fixed order so the
// first failing one determines the error: code, PKCE presence, PKCE match,
// resource authorization.
func (c *Coordinator) Exchange(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if req.GrantType != oauthmodel.AuthorizationCodeGrant {
		return nil, oauthmodel.UnsupportedGrantType(req.GrantType)
	}
	if req.Code == "" {
		return nil, oauthmodel.InvalidRequest("code is required")
	}

	record, err := c.codes.Get(ctx, req.Code)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, oauthmodel.InvalidGrant("authorization code is invalid, expired or already used")
		}
		return nil, pkgerrors.Wrap(err, "[Coordinator.Exchange] Get")
	}
	if record.Expired(c.nowTime()) {
		return nil, oauthmodel.InvalidGrant("authorization code expired")
	}

	if req.CodeVerifier == "" || record.CodeChallenge == "" {
		return nil, oauthmodel.InvalidRequest("code_verifier is required")
	}
	if !VerifyPKCE(record.CodeChallenge, record.CodeChallengeMethod, req.CodeVerifier) {
		return nil, oauthmodel.InvalidGrant("code_verifier does not match code_challenge")
	}
	if record.ClientID != "" && req.ClientID != record.ClientID {
		return nil, oauthmodel.InvalidGrant("code was issued to a different client")
	}
	if req.RedirectURI != "" && req.RedirectURI != record.RedirectURI {
		return nil, oauthmodel.InvalidGrant("redirect_uri does not match the authorization request")
	}

	requested := resource.ParseResourceList(req.Resources)
	if len(requested) > 0 {
		if err := resource.MatchAuthorized(requested, record.Resources); err != nil {
			return nil, err
		}
	}
	audience := resource.ChooseAudience(requested, record.Resources, c.baseURI)

	accessToken, claims, err := c.codec.Issue(token.IssueRequest{
		Subject:   record.Principal.ID,
		Audience:  audience,
		Scope:     record.Scope,
		ClientID:  req.ClientID,
		SessionID: record.SessionID,
		Principal: record.Principal,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Coordinator.Exchange] Issue")
	}

	// Only one concurrent exchange of the same code can consume it.
	if _, err := c.codes.Consume(ctx, req.Code); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, oauthmodel.InvalidGrant("authorization code already used")
		}
		return nil, pkgerrors.Wrap(err, "[Coordinator.Exchange] Consume")
	}

	c.metrics.TokenIssued()
	log.Info().Str("sub", claims.Subject).Strs("aud", claims.Audience).Str("client_id", req.ClientID).Msg("access token issued")

	return &oauthmodel.TokenResponse{
		AccessToken: accessToken,
		TokenType:   oauthmodel.TokenTypeBearer,
		ExpiresIn:   int(c.codec.Lifetime().Seconds()),
		Scope:       record.Scope,
	}, nil
}

// CodeRedirectURL appends code and state to redirectURI.
func CodeRedirectURL(redirectURI, code, state string) string {
	values := url.Values{"code": {code}}
	if state != "" {
		values.Set("state", state)
	}
	return appendQuery(redirectURI, values)
}

// ErrorRedirectURL appends an OAuth error and state to redirectURI.
func ErrorRedirectURL(redirectURI, state string, oauthErr *oauthmodel.Error) string {
	values := url.Values{"error": {oauthErr.Code}}
	if oauthErr.Description != "" {
		values.Set("error_description", oauthErr.Description)
	}
	if state != "" {
		values.Set("state", state)
	}
	return appendQuery(redirectURI, values)
}

func appendQuery(rawURL string, values url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	for k, v := range values {
		query[k] = v
	}
	u.RawQuery = query.Encode()
	return u.String()
}
