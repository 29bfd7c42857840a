package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/lm-mcp-gateway/internal/utils"
	"github.com/jrsteele09/lm-mcp-gateway/resource"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/pkg/errors"
)

// DefaultLifetime is the access token lifetime when none is configured.
const DefaultLifetime = time.Hour

// Reason explains why a token failed verification.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMalformed        Reason = "malformed"
	ReasonSignature        Reason = "invalid_signature"
	ReasonIssuerMismatch   Reason = "issuer_mismatch"
	ReasonAudienceMismatch Reason = "audience_mismatch"
	ReasonExpired          Reason = "expired"
	ReasonRevoked          Reason = "revoked"
)

// Claims are the decoded claims of an access token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  resource.Audience
	Scope     string
	ClientID  string
	SessionID string // upstream session the token was minted from
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Principal *users.Principal
}

// IssueRequest describes the token to mint.
type IssueRequest struct {
	Subject   string
	Audience  resource.Audience // defaults to the issuer
	Scope     string
	ClientID  string
	SessionID string
	Principal *users.Principal
}

// Result is the outcome of Verify. Valid is true only when every check passed.
type Result struct {
	Valid  bool
	Reason Reason
	Claims *Claims
	Err    error
}

// Codec issues and verifies signed access tokens bound to an audience.
type Codec struct {
	signer   Signer
	issuer   string
	lifetime time.Duration
	revoked  RevokedTokenCache
	nowFunc  func() time.Time
}

type CodecOption func(*Codec)

func WithLifetime(lifetime time.Duration) CodecOption {
	return func(c *Codec) {
		c.lifetime = lifetime
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) CodecOption {
	return func(c *Codec) {
		c.revoked = cache
	}
}

// NewCodec creates a Codec. The issuer is the service's base URI.
func NewCodec(signer Signer, issuer string, options ...CodecOption) (*Codec, error) {
	if signer == nil {
		return nil, errors.New("[NewCodec] signer is required")
	}
	if !resource.IsAbsoluteResourceURI(issuer) {
		return nil, errors.Errorf("[NewCodec] issuer must be an absolute URI: %q", issuer)
	}

	c := &Codec{
		signer: signer,
		issuer: resource.Normalize(issuer),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.lifetime <= 0 {
		c.lifetime = DefaultLifetime
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	if c.revoked == nil {
		c.revoked = NewInMemoryRevokedTokenCache(c.nowFunc)
	}
	return c, nil
}

func (c *Codec) Issuer() string {
	return c.issuer
}

func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Signer exposes the signer so its key set can be published.
func (c *Codec) Signer() Signer {
	return c.signer
}

// Issue signs a new access token and returns it with the claims it carries.
func (c *Codec) Issue(req IssueRequest) (string, *Claims, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return "", nil, errors.New("[Codec.Issue] subject is required")
	}

	audience := req.Audience
	if len(audience) == 0 {
		audience = resource.Audience{c.issuer}
	}

	now := c.nowFunc()
	claims := &Claims{
		Subject:   req.Subject,
		Issuer:    c.issuer,
		Audience:  audience,
		Scope:     req.Scope,
		ClientID:  req.ClientID,
		SessionID: req.SessionID,
		TokenID:   uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(c.lifetime),
		Principal: req.Principal,
	}

	mapClaims := jwt.MapClaims{
		"iss":   claims.Issuer,
		"sub":   claims.Subject,
		"aud":   audience.Claim(),
		"iat":   now.Unix(),
		"exp":   claims.ExpiresAt.Unix(),
		"jti":   claims.TokenID,
		"scope": claims.Scope,
	}
	if req.ClientID != "" {
		mapClaims["client_id"] = req.ClientID
	}
	if req.SessionID != "" {
		mapClaims["sid"] = req.SessionID
	}
	if req.Principal != nil {
		mapClaims["user"] = req.Principal.Claims()
	}

	signed, err := c.signer.Sign(mapClaims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Codec.Issue]")
	}
	return signed, claims, nil
}

// Verify checks signature and structure, then issuer, then that the audience
// contains one of expectedAudiences, then expiry, then revocation.
func (c *Codec) Verify(raw string, expectedAudiences ...string) Result {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.signer.Method().Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.Parse(raw, c.signer.VerificationKey)
	if err != nil {
		reason := ReasonSignature
		if errors.Is(err, jwt.ErrTokenMalformed) {
			reason = ReasonMalformed
		}
		return Result{Reason: reason, Err: err}
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Result{Reason: ReasonMalformed, Err: errors.New("unexpected claims type")}
	}
	claims, err := decodeClaims(mapClaims)
	if err != nil {
		return Result{Reason: ReasonMalformed, Err: err}
	}

	if claims.Issuer != c.issuer {
		return Result{Reason: ReasonIssuerMismatch, Claims: claims,
			Err: errors.Errorf("issuer %q does not match %q", claims.Issuer, c.issuer)}
	}

	if !audienceContainsAny(claims.Audience, expectedAudiences) {
		return Result{Reason: ReasonAudienceMismatch, Claims: claims,
			Err: errors.Errorf("audience %v does not contain %v", []string(claims.Audience), expectedAudiences)}
	}

	if claims.ExpiresAt.Before(c.nowFunc()) {
		return Result{Reason: ReasonExpired, Claims: claims,
			Err: errors.Errorf("token expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339))}
	}

	if c.revoked.IsRevoked(claims.TokenID) {
		return Result{Reason: ReasonRevoked, Claims: claims, Err: errors.New("token revoked")}
	}

	return Result{Valid: true, Claims: claims}
}

// Revoke verifies raw and records its token id as revoked. Tokens that do not
// verify are ignored, matching RFC 7009's always-succeed contract.
func (c *Codec) Revoke(raw string, expectedAudiences ...string) bool {
	result := c.Verify(raw, expectedAudiences...)
	if !result.Valid {
		return false
	}
	c.revoked.Add(result.Claims.TokenID, result.Claims.ExpiresAt)
	return true
}

// CleanupRevoked drops revocation entries for tokens that have expired.
func (c *Codec) CleanupRevoked() int {
	return c.revoked.Cleanup()
}

// LooksLikeSelfDescribingToken reports whether s has the three-segment JWT shape.
func LooksLikeSelfDescribingToken(s string) bool {
	return strings.Count(s, ".") == 2
}

func audienceContainsAny(audience resource.Audience, expected []string) bool {
	if len(audience) == 0 {
		return false
	}
	for _, e := range expected {
		if e != "" && audience.Contains(e) {
			return true
		}
	}
	return false
}

func decodeClaims(m jwt.MapClaims) (*Claims, error) {
	claims := &Claims{}
	claims.Subject, _ = m["sub"].(string)
	claims.Issuer, _ = m["iss"].(string)
	claims.Scope, _ = m["scope"].(string)
	claims.ClientID, _ = m["client_id"].(string)
	claims.SessionID, _ = m["sid"].(string)
	claims.TokenID, _ = m["jti"].(string)
	claims.Audience = resource.Audience(utils.ClaimStrings(m["aud"]))
	claims.Principal = users.PrincipalFromClaims(m["user"])

	exp, err := m.GetExpirationTime()
	if err != nil {
		return nil, errors.Wrap(err, "exp")
	}
	if exp == nil {
		return nil, errors.New("missing exp claim")
	}
	claims.ExpiresAt = exp.Time

	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}
