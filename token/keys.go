package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Supported signing algorithms
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
)

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
	Algorithm  string // RS256 or ES256
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair]")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  AlgRS256,
	}, nil
}

// GenerateECDSAKeyPair generates a new P-256 key pair for ES256 signing
func GenerateECDSAKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateECDSAKeyPair]")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  AlgES256,
	}, nil
}

// LoadKeyPairFromPEM parses a PKCS#1, SEC 1 or PKCS#8 private key.
// The algorithm follows the key type.
func LoadKeyPairFromPEM(keyID string, pemData []byte) (*KeyPair, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("[LoadKeyPairFromPEM] failed to decode PEM block")
	}

	var key any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromPEM] parse %s", block.Type)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &KeyPair{KeyID: keyID, PrivateKey: k, PublicKey: &k.PublicKey, Algorithm: AlgRS256}, nil
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, errors.New("[LoadKeyPairFromPEM] only P-256 ECDSA keys are supported")
		}
		return &KeyPair{KeyID: keyID, PrivateKey: k, PublicKey: &k.PublicKey, Algorithm: AlgES256}, nil
	default:
		return nil, errors.Errorf("[LoadKeyPairFromPEM] unsupported private key type %T", key)
	}
}

// SigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	if kp.Algorithm == AlgES256 {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodRS256
}

// ExportPrivateKeyPEM exports the private key as PKCS#8 PEM
func (kp *KeyPair) ExportPrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPair.ExportPrivateKeyPEM]")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ToJWK converts the key pair's public key to a JSON Web Key
func (kp *KeyPair) ToJWK() (*jose.JSONWebKey, error) {
	jwk := &jose.JSONWebKey{
		Key:       kp.PublicKey,
		KeyID:     kp.KeyID,
		Algorithm: kp.Algorithm,
		Use:       "sig",
	}
	if !jwk.Valid() {
		return nil, errors.New("[KeyPair.ToJWK] unsupported public key type")
	}
	return jwk, nil
}
