package token

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SignerConfig selects and keys the access token signer.
type SignerConfig struct {
	Algorithm string // HS256, RS256 or ES256
	Secret    string // HS256 shared secret
	KeyFile   string // PEM private key for RS256/ES256; generated when empty
	KeyID     string
}

// NewSigner creates the Signer described by cfg. Asymmetric signers without a
// key file get an ephemeral key, so tokens do not survive a restart.
func NewSigner(cfg SignerConfig) (Signer, error) {
	switch cfg.Algorithm {
	case "", AlgHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("[NewSigner] HS256 secret must be at least 32 bytes")
		}
		return NewHMACSigner(cfg.Secret), nil

	case AlgRS256, AlgES256:
		if cfg.KeyFile != "" {
			data, err := os.ReadFile(cfg.KeyFile)
			if err != nil {
				return nil, errors.Wrap(err, "[NewSigner] read key file")
			}
			keyPair, err := LoadKeyPairFromPEM(cfg.KeyID, data)
			if err != nil {
				return nil, err
			}
			if keyPair.Algorithm != cfg.Algorithm {
				return nil, errors.Errorf("[NewSigner] key file holds a %s key, %s configured", keyPair.Algorithm, cfg.Algorithm)
			}
			return NewKeyPairSigner(keyPair), nil
		}

		log.Warn().Str("alg", cfg.Algorithm).Msg("no signing key file configured, generating an ephemeral key")
		var keyPair *KeyPair
		var err error
		if cfg.Algorithm == AlgRS256 {
			keyPair, err = GenerateRSAKeyPair(cfg.KeyID, 2048)
		} else {
			keyPair, err = GenerateECDSAKeyPair(cfg.KeyID)
		}
		if err != nil {
			return nil, err
		}
		return NewKeyPairSigner(keyPair), nil

	default:
		return nil, errors.Errorf("[NewSigner] unsupported signing algorithm: %s", cfg.Algorithm)
	}
}
