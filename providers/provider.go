// Package providers holds the upstream identity provider strategies. A strategy
// builds the upstream authorization redirect, exchanges the returned code for a
// principal and credentials, and optionally renews those credentials.
package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	KindGoogle = "google"
	KindAzure  = "azure"
	KindOkta   = "okta"
	KindAuth0  = "auth0"
	KindOIDC   = "oidc"
	KindCustom = "custom"
)

const defaultScope = "openid profile email"

// Config describes one upstream identity provider. Which of the endpoint fields
// are required depends on Kind.
type Config struct {
	Kind         string `yaml:"kind"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
	Scope        string `yaml:"scope"`

	Issuer   string `yaml:"issuer"`    // oidc, okta
	Domain   string `yaml:"domain"`    // auth0, okta when no issuer is set
	TenantID string `yaml:"tenant_id"` // azure, defaults to "common"

	AuthURL     string `yaml:"auth_url"`     // custom
	TokenURL    string `yaml:"token_url"`    // custom
	UserInfoURL string `yaml:"userinfo_url"` // custom
}

// Provider is an upstream login strategy.
type Provider interface {
	Kind() string
	// AuthCodeURL returns the upstream authorization URL carrying state verbatim.
	AuthCodeURL(state string) string
	// Exchange trades the upstream code for the caller's identity and credentials.
	Exchange(ctx context.Context, code string) (*users.Principal, sessions.Credentials, error)
	SupportsRefresh() bool
	Refresh(ctx context.Context, refreshToken string) (*sessions.Credentials, error)
}

// IssuerFor resolves the discovery issuer for the OIDC based kinds.
func IssuerFor(cfg Config) (string, error) {
	switch cfg.Kind {
	case KindGoogle:
		return "https://accounts.google.com", nil
	case KindAzure:
		tenant := cfg.TenantID
		if tenant == "" {
			tenant = "common"
		}
		return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenant), nil
	case KindOkta:
		if cfg.Issuer != "" {
			return cfg.Issuer, nil
		}
		if cfg.Domain == "" {
			return "", pkgerrors.New("[providers.IssuerFor] okta requires issuer or domain")
		}
		return "https://" + strings.TrimSuffix(cfg.Domain, "/") + "/oauth2/default", nil
	case KindAuth0:
		if cfg.Domain == "" {
			return "", pkgerrors.New("[providers.IssuerFor] auth0 requires domain")
		}
		return "https://" + strings.TrimSuffix(cfg.Domain, "/") + "/", nil
	case KindOIDC:
		if cfg.Issuer == "" {
			return "", pkgerrors.New("[providers.IssuerFor] oidc requires issuer")
		}
		return cfg.Issuer, nil
	default:
		return "", pkgerrors.Wrapf(errors.ErrUnknownProvider, "[providers.IssuerFor] %q", cfg.Kind)
	}
}

// New builds the strategy for cfg.Kind. OIDC kinds perform discovery against the issuer.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.ClientID == "" {
		return nil, pkgerrors.New("[providers.New] client id is required")
	}
	if cfg.CallbackURL == "" {
		return nil, pkgerrors.New("[providers.New] callback url is required")
	}
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}

	if cfg.Kind == KindCustom {
		return NewCustomProvider(cfg)
	}
	issuer, err := IssuerFor(cfg)
	if err != nil {
		return nil, err
	}
	return NewOIDCProvider(ctx, cfg, issuer)
}

func oauth2Config(cfg Config, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint:     endpoint,
	}
}

func credentialsFromToken(tok *oauth2.Token) sessions.Credentials {
	return sessions.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		TokenType:    tok.Type(),
	}
}

// refreshWith runs the refresh_token grant against conf's token endpoint.
func refreshWith(ctx context.Context, conf *oauth2.Config, refreshToken string) (*sessions.Credentials, error) {
	if refreshToken == "" {
		return nil, pkgerrors.Wrap(errors.ErrRefreshFailed, "[providers.Refresh] no refresh token")
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[providers.Refresh]")
	}
	creds := credentialsFromToken(tok)
	return &creds, nil
}

var _ sessions.RefresherRegistry = (*Registry)(nil)

// Registry looks strategies up by kind and doubles as the scheduler's refresher source.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Add(p)
	}
	return r
}

func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
}

func (r *Registry) Get(kind string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	if !ok {
		return nil, pkgerrors.Wrapf(errors.ErrUnknownProvider, "[Registry.Get] %q", kind)
	}
	return p, nil
}

func (r *Registry) Refresher(kind string) (sessions.Refresher, bool) {
	p, err := r.Get(kind)
	if err != nil {
		return nil, false
	}
	return p, true
}
