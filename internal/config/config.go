// Package config loads the gateway configuration from an optional YAML file
// overlaid by environment variables. It is read once at startup.
package config

import (
	"bytes"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/providers"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	AppName   string `yaml:"app_name"`
	BaseURL   string `yaml:"base_url"`
	Listen    string `yaml:"listen"`
	Transport string `yaml:"transport"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	TLS      TLSConfig        `yaml:"tls"`
	Provider providers.Config `yaml:"provider"`
	OAuth    OAuth            `yaml:"oauth"`
	Security Security         `yaml:"security"`
	Cors     Cors             `yaml:"cors"`
	Store    StoreConfig      `yaml:"store"`
}

// TLSConfig enables ACME certificates for the listed domains.
type TLSConfig struct {
	Domains  []string `yaml:"domains"`
	Email    string   `yaml:"email"`
	CacheDir string   `yaml:"cache_dir"`
}

func (t TLSConfig) Enabled() bool {
	return len(t.Domains) > 0
}

type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the configuration used when no file or variables are set.
func Default() Config {
	return Config{
		AppName:   "LM MCP Gateway",
		BaseURL:   "http://localhost:8080",
		Listen:    ":8080",
		Transport: TransportHTTP,
		LogLevel:  "info",
		OAuth:     defaultOAuth(),
		Security:  defaultSecurity(),
		Cors:      defaultCors(),
		Store: StoreConfig{
			Backend:       StoreMemory,
			RedisAddr:     "localhost:6379",
			KeyPrefix:     "lm-mcp:",
			SweepInterval: time.Hour,
		},
		TLS: TLSConfig{CacheDir: "./certs"},
	}
}

// Load reads path (when not empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "[config.Load] read")
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "[config.Load] parse %s", path)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("[Config.Validate] base_url must be an absolute URL: %q", c.BaseURL)
	}

	switch c.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return errors.Errorf("[Config.Validate] unknown transport %q", c.Transport)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("[Config.Validate] store.redis_addr is required for the redis backend")
		}
	default:
		return errors.Errorf("[Config.Validate] unknown store backend %q", c.Store.Backend)
	}

	if c.OAuthEnabled() {
		if c.Provider.ClientID == "" {
			return errors.New("[Config.Validate] provider.client_id is required")
		}
		if len(c.Security.SessionSecret) < 32 {
			return errors.New("[Config.Validate] security.session_secret must be at least 32 bytes when a provider is configured")
		}
	}

	if c.Transport == TransportStdio && c.AuthRequired() && c.Security.APIToken == "" {
		return errors.New("[Config.Validate] the stdio transport needs security.api_token when authentication is enabled")
	}

	for _, r := range c.OAuth.SupportedResources {
		if !strings.HasPrefix(r, "https://") && !strings.HasPrefix(r, "http://") {
			return errors.Errorf("[Config.Validate] supported resource must be an absolute URI: %q", r)
		}
	}
	return nil
}

// OAuthEnabled reports whether an upstream provider is configured.
func (c Config) OAuthEnabled() bool {
	return c.Provider.Kind != ""
}

// AuthRequired reports whether any authentication path is configured. When
// none is, the gateway runs in open mode.
func (c Config) AuthRequired() bool {
	return c.OAuthEnabled() || c.Security.APIToken != ""
}

// CallbackURL is the upstream redirect target, derived from the base URL unless set.
func (c Config) CallbackURL() string {
	if c.Provider.CallbackURL != "" {
		return c.Provider.CallbackURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/callback"
}
