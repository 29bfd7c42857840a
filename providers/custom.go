package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/lm-mcp-gateway/sessions"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// CustomProvider talks to a plain OAuth 2.0 server with explicitly configured
// endpoints. Identity comes from the userinfo URL.
type CustomProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

func NewCustomProvider(cfg Config) (*CustomProvider, error) {
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, pkgerrors.New("[providers.NewCustomProvider] auth_url, token_url and userinfo_url are required")
	}
	endpoint := oauth2.Endpoint{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return &CustomProvider{
		conf:        oauth2Config(cfg, endpoint),
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

func (p *CustomProvider) Kind() string {
	return KindCustom
}

func (p *CustomProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *CustomProvider) Exchange(ctx context.Context, code string) (*users.Principal, sessions.Credentials, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, sessions.Credentials{}, pkgerrors.Wrap(err, "[CustomProvider.Exchange] token exchange")
	}

	principal, err := p.userInfo(ctx, tok)
	if err != nil {
		return nil, sessions.Credentials{}, err
	}
	return principal, credentialsFromToken(tok), nil
}

func (p *CustomProvider) userInfo(ctx context.Context, tok *oauth2.Token) (*users.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[CustomProvider.userInfo]")
	}
	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[CustomProvider.userInfo]")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Errorf("[CustomProvider.userInfo] unexpected status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, pkgerrors.Wrap(err, "[CustomProvider.userInfo] decode")
	}

	principal := &users.Principal{
		ID:    firstString(info, "sub", "id", "user_id", "login"),
		Name:  firstString(info, "name", "preferred_username", "login"),
		Email: firstString(info, "email"),
	}
	if principal.ID == "" {
		return nil, pkgerrors.New("[CustomProvider.userInfo] userinfo has no subject")
	}
	return principal, nil
}

// SupportsRefresh is always true; a server that rejects the grant fails the refresh.
func (p *CustomProvider) SupportsRefresh() bool {
	return true
}

func (p *CustomProvider) Refresh(ctx context.Context, refreshToken string) (*sessions.Credentials, error) {
	return refreshWith(ctx, p.conf, refreshToken)
}

// firstString returns the first present key as a string. Numeric ids are formatted.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
