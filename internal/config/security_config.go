package config

import "github.com/jrsteele09/lm-mcp-gateway/token"

type Security struct {
	APIToken         string `yaml:"api_token"`      // static bearer token accepted on every transport
	APIScope         string `yaml:"api_scope"`      // scope granted to APIToken callers
	SessionSecret    string `yaml:"session_secret"` // signs session cookies and HS256 access tokens
	SigningAlgorithm string `yaml:"signing_algorithm"`
	SigningKeyFile   string `yaml:"signing_key_file"`
	SigningKeyID     string `yaml:"signing_key_id"`
	SecureCookies    bool   `yaml:"secure_cookies"`
}

func defaultSecurity() Security {
	return Security{
		SigningAlgorithm: token.AlgHS256,
		SigningKeyID:     "lm-mcp-1",
		SecureCookies:    true,
	}
}

// SignerConfig maps the security settings onto the token signer.
func (s Security) SignerConfig() token.SignerConfig {
	return token.SignerConfig{
		Algorithm: s.SigningAlgorithm,
		Secret:    s.SessionSecret,
		KeyFile:   s.SigningKeyFile,
		KeyID:     s.SigningKeyID,
	}
}
