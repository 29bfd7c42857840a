package main

import (
	"context"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/auth"
	"github.com/jrsteele09/lm-mcp-gateway/auth/redisstore"
	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/clients"
	"github.com/jrsteele09/lm-mcp-gateway/internal/config"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
	"github.com/jrsteele09/lm-mcp-gateway/providers"
	"github.com/jrsteele09/lm-mcp-gateway/server"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	sessionredis "github.com/jrsteele09/lm-mcp-gateway/sessions/redisstore"
	"github.com/jrsteele09/lm-mcp-gateway/token"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	mcpgo "github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// gateway holds everything built from the configuration.
type gateway struct {
	cfg           config.Config
	metrics       *metrics.Metrics
	redis         redis.UniversalClient
	codec         *token.Codec
	legacy        *token.InMemoryLegacyTokenStore
	codes         *auth.InMemoryCodeStore
	clients       *clients.InMemoryRepo
	scheduler     *sessions.Scheduler
	coordinator   *auth.Coordinator
	cookie        *authn.SessionCookie
	authenticator *authn.Authenticator
	mcp           *mcpgo.MCPServer
}

func newGateway(ctx context.Context, cfg config.Config) (*gateway, error) {
	g := &gateway{
		cfg:     cfg,
		metrics: metrics.New(),
		legacy:  token.NewInMemoryLegacyTokenStore(time.Now),
		clients: clients.NewInMemoryRepo(),
	}

	if cfg.Store.Backend == config.StoreRedis {
		g.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := g.redis.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "[newGateway] redis ping %s", cfg.Store.RedisAddr)
		}
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("using redis for sessions and authorization codes")
	}

	var sessionStore sessions.Store = sessions.NewInMemoryStore()
	if g.redis != nil {
		sessionStore = sessionredis.New(g.redis, cfg.Store.KeyPrefix)
	}

	if cfg.OAuthEnabled() {
		if err := g.buildOAuth(ctx, sessionStore); err != nil {
			return nil, err
		}
	}

	g.authenticator = g.buildAuthenticator()

	var credentials tools.CredentialSource
	if g.scheduler != nil {
		credentials = g.scheduler
	}
	gate := tools.NewGate(tools.NewScopeManager(), tools.WithGateMetrics(g.metrics))
	g.mcp = mcpserver.New(version, gate, tools.NewDispatcher(nil, credentials))
	return g, nil
}

func (g *gateway) buildOAuth(ctx context.Context, sessionStore sessions.Store) error {
	cfg := g.cfg

	providerCfg := cfg.Provider
	providerCfg.CallbackURL = cfg.CallbackURL()
	provider, err := providers.New(ctx, providerCfg)
	if err != nil {
		return errors.Wrap(err, "[newGateway] upstream provider")
	}

	g.scheduler, err = sessions.NewScheduler(sessionStore, providers.NewRegistry(provider),
		sessions.WithRefreshEnabled(cfg.OAuth.RefreshEnabled),
		sessions.WithLeadTime(cfg.OAuth.RefreshLeadTime),
		sessions.WithMetrics(g.metrics),
	)
	if err != nil {
		return errors.Wrap(err, "[newGateway] session scheduler")
	}

	signer, err := token.NewSigner(cfg.Security.SignerConfig())
	if err != nil {
		return errors.Wrap(err, "[newGateway] token signer")
	}
	g.codec, err = token.NewCodec(signer, cfg.BaseURL, token.WithLifetime(cfg.OAuth.TokenLifetime))
	if err != nil {
		return errors.Wrap(err, "[newGateway] token codec")
	}

	var codes auth.CodeStore
	if g.redis != nil {
		codes = redisstore.New(g.redis, cfg.Store.KeyPrefix)
	} else {
		g.codes = auth.NewInMemoryCodeStore(time.Now)
		codes = g.codes
	}

	g.coordinator, err = auth.NewCoordinator(provider, g.scheduler, codes, g.codec,
		auth.WithSupportedResources(cfg.OAuth.SupportedResources...),
		auth.WithDefaultScope(cfg.OAuth.DefaultScope),
		auth.WithCodeLifetime(cfg.OAuth.CodeLifetime),
		auth.WithLegacyTokens(g.legacy),
		auth.WithLegacyTokenLifetime(cfg.OAuth.LegacyTokenLifetime),
		auth.WithClients(g.clients),
		auth.WithStateSecret(cfg.Security.SessionSecret),
		auth.WithMetrics(g.metrics),
	)
	if err != nil {
		return errors.Wrap(err, "[newGateway] coordinator")
	}

	g.cookie = authn.NewSessionCookie(cfg.Security.SessionSecret, cfg.Security.SecureCookies)
	log.Info().Str("provider", provider.Kind()).Str("algorithm", cfg.Security.SigningAlgorithm).
		Strs("resources", g.coordinator.SupportedResources()).Msg("OAuth enabled")
	return nil
}

func (g *gateway) buildAuthenticator() *authn.Authenticator {
	cfg := g.cfg
	authnCfg := authn.Config{
		Open:                !cfg.AuthRequired(),
		BaselineScope:       cfg.OAuth.DefaultScope,
		StaticToken:         cfg.Security.APIToken,
		StaticScope:         cfg.Security.APIScope,
		ResourceMetadataURL: cfg.BaseURL + server.RouteWellKnownProtectedResource,
	}
	options := []authn.Option{
		authn.WithLegacyTokens(g.legacy),
		authn.WithMetrics(g.metrics),
	}
	if g.coordinator != nil {
		authnCfg.Audiences = g.coordinator.SupportedResources()
		authnCfg.AuthorizationServerURL = cfg.BaseURL + server.RouteWellKnownAuthServer
		options = append(options,
			authn.WithCodec(g.codec),
			authn.WithSessionCookie(g.cookie, g.scheduler),
		)
	}
	if authnCfg.Open {
		log.Warn().Msg("no provider or API token configured, running in open mode")
	}
	return authn.NewAuthenticator(authnCfg, options...)
}

// httpServer builds the HTTP surface for the sse and http transports.
func (g *gateway) httpServer() (*server.Server, error) {
	opts := server.Options{
		Config:        g.cfg,
		Version:       version,
		Authenticator: g.authenticator,
		Legacy:        g.legacy,
		Clients:       g.clients,
		MCP:           g.mcp,
		Metrics:       g.metrics,
	}
	if g.coordinator != nil {
		opts.Coordinator = g.coordinator
		opts.Codec = g.codec
		opts.Sessions = g.scheduler
		opts.Cookie = g.cookie
	}
	return server.New(opts)
}

// cleanup drops expired codes, opaque tokens and revocation entries.
func (g *gateway) cleanup() {
	removed := g.legacy.Cleanup()
	if g.codes != nil {
		removed += g.codes.Cleanup()
	}
	if g.codec != nil {
		removed += g.codec.CleanupRevoked()
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("expired entries cleaned up")
	}
}

func (g *gateway) close() {
	if g.scheduler != nil {
		g.scheduler.Stop()
	}
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			log.Err(err).Msg("failed to close redis client")
		}
	}
}
