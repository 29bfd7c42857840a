package auth

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
	pkgerrors "github.com/pkg/errors"
)

// DefaultStateLifetime bounds how long an upstream login may take.
const DefaultStateLifetime = 15 * time.Minute

const stateAudience = "upstream-state"

// stateClaims carries the downstream login parameters through the upstream
// provider as an HS256 JWT, so the callback only trusts what StartLogin signed.
type stateClaims struct {
	Login oauthmodel.LoginParameters `json:"login"`
	jwt.RegisteredClaims
}

type stateSigner struct {
	key      []byte
	issuer   string
	lifetime time.Duration
	nowFunc  func() time.Time
}

func newRandomStateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, pkgerrors.Wrap(err, "[auth.newRandomStateKey] rand.Read")
	}
	return key, nil
}

func (s *stateSigner) encode(params *oauthmodel.LoginParameters) (string, error) {
	now := s.nowFunc()
	claims := stateClaims{
		Login: *params,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[stateSigner.encode] SignedString")
	}
	return state, nil
}

// decode verifies the signature, issuer, audience and expiry of state.
func (s *stateSigner) decode(state string) (*oauthmodel.LoginParameters, error) {
	if state == "" {
		return nil, oauthmodel.ErrInvalidState
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil {
		return nil, pkgerrors.Wrap(oauthmodel.ErrInvalidState, err.Error())
	}
	return &claims.Login, nil
}
