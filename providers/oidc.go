package providers

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OIDCProvider logs users in through any discovery capable issuer. Google,
// Azure, Okta and Auth0 differ only in how the issuer is derived.
type OIDCProvider struct {
	kind     string
	issuer   string
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	conf     *oauth2.Config
}

func NewOIDCProvider(ctx context.Context, cfg Config, issuer string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "[providers.NewOIDCProvider] discovery for %s", issuer)
	}

	log.Debug().Str("kind", cfg.Kind).Str("issuer", issuer).Msg("upstream provider discovered")

	return &OIDCProvider{
		kind:     cfg.Kind,
		issuer:   issuer,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		conf:     oauth2Config(cfg, provider.Endpoint()),
	}, nil
}

func (p *OIDCProvider) Kind() string {
	return p.kind
}

func (p *OIDCProvider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{}
	if p.kind == KindGoogle {
		// Google only returns a refresh token for offline access with consent.
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return p.conf.AuthCodeURL(state, opts...)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*users.Principal, sessions.Credentials, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[OIDCProvider.Exchange] token exchange")
	}

	var claims struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[OIDCProvider.Exchange] id token verification")
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[OIDCProvider.Exchange] id token claims")
		}
	} else {
		info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[OIDCProvider.Exchange] userinfo")
		}
		if err := info.Claims(&claims); err != nil {
			return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[OIDCProvider.Exchange] userinfo claims")
		}
		if claims.Sub == "" {
			claims.Sub = info.Subject
		}
	}

	if claims.Sub == "" {
		return nil, sessions.Credentials{}, pkgerrors.New("[OIDCProvider.Exchange] upstream identity has no subject")
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	principal := &users.Principal{ID: claims.Sub, Name: name, Email: claims.Email}
	return principal, credentialsFromToken(tok), nil
}

func (p *OIDCProvider) SupportsRefresh() bool {
	return true
}

func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*sessions.Credentials, error) {
	return refreshWith(ctx, p.conf, refreshToken)
}
