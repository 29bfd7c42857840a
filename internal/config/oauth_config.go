package config

import "time"

type OAuth struct {
	TokenLifetime       time.Duration `yaml:"token_lifetime"`
	CodeLifetime        time.Duration `yaml:"code_lifetime"`
	LegacyTokenLifetime time.Duration `yaml:"legacy_token_lifetime"`
	// SupportedResources are resource URIs accepted besides the base URL.
	SupportedResources []string `yaml:"supported_resources"`
	DefaultScope       string   `yaml:"default_scope"`

	RefreshEnabled  bool          `yaml:"refresh_enabled"`
	RefreshLeadTime time.Duration `yaml:"refresh_lead_time"`
}

func defaultOAuth() OAuth {
	return OAuth{
		TokenLifetime:       time.Hour,
		CodeLifetime:        10 * time.Minute,
		LegacyTokenLifetime: time.Hour,
		DefaultScope:        "mcp:tools",
		RefreshEnabled:      true,
		RefreshLeadTime:     5 * time.Minute,
	}
}
