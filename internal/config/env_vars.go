package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	appNameVar       = "APP_NAME"
	baseURLVar       = "BASE_URL"
	portEnvVar       = "PORT"
	listenVar        = "LISTEN_ADDR"
	transportVar     = "MCP_TRANSPORT"
	logLevelVar      = "LOG_LEVEL"
	apiTokenVar      = "MCP_API_TOKEN"
	sessionSecretVar = "SESSION_SECRET"
	signingAlgVar    = "TOKEN_SIGNING_ALG"
	signingKeyVar    = "TOKEN_SIGNING_KEY_FILE"
	tokenLifetimeVar = "TOKEN_LIFETIME"
	resourcesVar     = "SUPPORTED_RESOURCES"
	corsOriginsVar   = "CORS_ORIGINS"
	providerKindVar  = "OAUTH_PROVIDER"
	clientIDVar      = "OAUTH_CLIENT_ID"
	clientSecretVar  = "OAUTH_CLIENT_SECRET"
	issuerVar        = "OAUTH_ISSUER"
	domainVar        = "OAUTH_DOMAIN"
	tenantIDVar      = "OAUTH_TENANT_ID"
	refreshVar       = "OAUTH_REFRESH_ENABLED"
	leadTimeVar      = "OAUTH_REFRESH_LEAD_MINUTES"
	storeVar         = "STORE_BACKEND"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
)

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func applyEnv(cfg *Config) {
	cfg.AppName = GetEnv(appNameVar, cfg.AppName)
	cfg.BaseURL = GetEnv(baseURLVar, cfg.BaseURL)
	if port := os.Getenv(portEnvVar); port != "" {
		cfg.Listen = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.Listen = GetEnv(listenVar, cfg.Listen)
	cfg.Transport = GetEnv(transportVar, cfg.Transport)
	cfg.LogLevel = GetEnv(logLevelVar, cfg.LogLevel)

	cfg.Security.APIToken = GetEnv(apiTokenVar, cfg.Security.APIToken)
	cfg.Security.SessionSecret = GetEnv(sessionSecretVar, cfg.Security.SessionSecret)
	cfg.Security.SigningAlgorithm = GetEnv(signingAlgVar, cfg.Security.SigningAlgorithm)
	cfg.Security.SigningKeyFile = GetEnv(signingKeyVar, cfg.Security.SigningKeyFile)

	cfg.OAuth.TokenLifetime = getDuration(tokenLifetimeVar, cfg.OAuth.TokenLifetime)
	if v := os.Getenv(resourcesVar); v != "" {
		cfg.OAuth.SupportedResources = splitList(v)
	}
	if v := os.Getenv(corsOriginsVar); v != "" {
		cfg.Cors.Origins = splitList(v)
	}

	cfg.Provider.Kind = GetEnv(providerKindVar, cfg.Provider.Kind)
	cfg.Provider.ClientID = GetEnv(clientIDVar, cfg.Provider.ClientID)
	cfg.Provider.ClientSecret = GetEnv(clientSecretVar, cfg.Provider.ClientSecret)
	cfg.Provider.Issuer = GetEnv(issuerVar, cfg.Provider.Issuer)
	cfg.Provider.Domain = GetEnv(domainVar, cfg.Provider.Domain)
	cfg.Provider.TenantID = GetEnv(tenantIDVar, cfg.Provider.TenantID)
	cfg.OAuth.RefreshEnabled = getBool(refreshVar, cfg.OAuth.RefreshEnabled)
	if v := os.Getenv(leadTimeVar); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.OAuth.RefreshLeadTime = time.Duration(minutes) * time.Minute
		} else {
			log.Warn().Str("var", leadTimeVar).Str("value", v).Msg("ignoring invalid refresh lead time")
		}
	}

	cfg.Store.Backend = GetEnv(storeVar, cfg.Store.Backend)
	cfg.Store.RedisAddr = GetEnv(redisAddrVar, cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = GetEnv(redisPasswordVar, cfg.Store.RedisPassword)
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("var", envVar).Str("value", v).Msg("ignoring invalid duration")
		return defaultValue
	}
	return d
}

func getBool(envVar string, defaultValue bool) bool {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("var", envVar).Str("value", v).Msg("ignoring invalid boolean")
		return defaultValue
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, item)
	}
	return out
}
