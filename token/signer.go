package token

import (
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs access tokens and supplies the key used to verify them.
type Signer interface {
	// Sign creates a signed JWT from claims
	Sign(claims jwt.MapClaims) (string, error)

	// VerificationKey is a jwt.Keyfunc returning the key for a parsed token
	VerificationKey(token *jwt.Token) (any, error)

	// Method returns the JWT signing method used
	Method() jwt.SigningMethod
}

// KeySetPublisher is implemented by signers whose verification key can be published.
type KeySetPublisher interface {
	KeySet() (*jose.JSONWebKeySet, error)
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign]")
	}
	return signed, nil
}

func (h *HMACSigner) VerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner implements Signer using RSA or ECDSA and publishes its public key
type KeyPairSigner struct {
	keyPair *KeyPair
}

// NewKeyPairSigner creates a new key pair signer with the given key pair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.SigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signed, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign]")
	}
	return signed, nil
}

func (a *KeyPairSigner) VerificationKey(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if kid, ok := token.Header["kid"].(string); ok && kid != a.keyPair.KeyID {
			return nil, errors.Errorf("unknown key id %q", kid)
		}
		return a.keyPair.PublicKey, nil
	default:
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func (a *KeyPairSigner) Method() jwt.SigningMethod {
	return a.keyPair.SigningMethod()
}

// KeySet returns the JSON Web Key Set containing the public key
func (a *KeyPairSigner) KeySet() (*jose.JSONWebKeySet, error) {
	jwk, err := a.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPairSigner.KeySet]")
	}
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{*jwk}}, nil
}
