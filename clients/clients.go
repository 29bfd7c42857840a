// Package clients implements dynamic client registration (RFC 7591) for MCP
// clients. Every registered client is public: it authenticates with PKCE only
// and never receives a secret.
package clients

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
)

const (
	AuthMethodNone          = "none"
	GrantAuthorizationCode  = "authorization_code"
	ResponseTypeCode        = "code"
	defaultClientNamePrefix = "mcp-client-"
)

type Client struct {
	ID                      string    `json:"client_id"`
	Name                    string    `json:"client_name,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	Scope                   string    `json:"scope,omitempty"`
	IssuedAt                time.Time `json:"-"`
}

// RegistrationRequest is the client metadata document posted to the registration endpoint.
type RegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope"`
}

// RegistrationResponse echoes the stored metadata plus the issue time.
type RegistrationResponse struct {
	*Client
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`
}

// AllowsRedirect checks redirectURI against the registered set by exact match.
func (c *Client) AllowsRedirect(redirectURI string) bool {
	return slices.Contains(c.RedirectURIs, redirectURI)
}

// Validate applies the registration rules and fills in defaults.
func (r *RegistrationRequest) Validate() error {
	if len(r.RedirectURIs) == 0 {
		return oauthmodel.NewError(oauthmodel.ErrorInvalidRedirectURI, "at least one redirect_uri is required")
	}
	for _, uri := range r.RedirectURIs {
		params := oauthmodel.LoginParameters{RedirectURI: uri}
		if err := params.ValidateRedirect(); err != nil {
			return oauthmodel.NewError(oauthmodel.ErrorInvalidRedirectURI, "invalid redirect_uri %q", uri)
		}
	}

	if r.TokenEndpointAuthMethod == "" {
		r.TokenEndpointAuthMethod = AuthMethodNone
	}
	if r.TokenEndpointAuthMethod != AuthMethodNone {
		return oauthmodel.NewError(oauthmodel.ErrorInvalidClientMetadata,
			"token_endpoint_auth_method %q is not supported, only %q", r.TokenEndpointAuthMethod, AuthMethodNone)
	}

	if len(r.GrantTypes) == 0 {
		r.GrantTypes = []string{GrantAuthorizationCode}
	}
	for _, gt := range r.GrantTypes {
		if gt != GrantAuthorizationCode {
			return oauthmodel.NewError(oauthmodel.ErrorInvalidClientMetadata, "grant_type %q is not supported", gt)
		}
	}

	if len(r.ResponseTypes) == 0 {
		r.ResponseTypes = []string{ResponseTypeCode}
	}
	for _, rt := range r.ResponseTypes {
		if rt != ResponseTypeCode {
			return oauthmodel.NewError(oauthmodel.ErrorInvalidClientMetadata, "response_type %q is not supported", rt)
		}
	}
	return nil
}

// NewClient validates req and builds a public client with a generated id.
func NewClient(req RegistrationRequest, now time.Time) (*Client, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		name = defaultClientNamePrefix + id[:8]
	}

	return &Client{
		ID:                      id,
		Name:                    name,
		RedirectURIs:            slices.Clone(req.RedirectURIs),
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		Scope:                   req.Scope,
		IssuedAt:                now,
	}, nil
}

// Response builds the registration endpoint body.
func (c *Client) Response() RegistrationResponse {
	return RegistrationResponse{Client: c, ClientIDIssuedAt: c.IssuedAt.Unix()}
}
