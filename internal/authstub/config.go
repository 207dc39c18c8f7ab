package authstub

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/jwtx"
)

type Config struct {
	Issuer          string        // Issuer claim on access tokens (default: authstub)
	AccessTTL       time.Duration // Access token lifetime (default: 15m)
	RefreshTTL      time.Duration // Refresh token lifetime (default: 7d)
	RotateRefresh   bool          // Issue a new refresh token on every refresh (default: false)
	ChallengeTTL    time.Duration // 2FA challenge lifetime (default: 5m)
	MagicLinkTTL    time.Duration // Magic link lifetime (default: 15m)
	MaxCodeAttempts int           // Wrong 2FA codes before a challenge locks (default: 5)
	OAuthProvider   string        // Authorization URL returned by /auth/oauth/login-url
	LoginLimit      httpx.RateLimitConfig
	HashParams      cryptox.Argon2Params // Password hashing cost (default: cryptox.DefaultArgon2Params)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired record sweep interval (default: 1m)
}

// LoadConfig reads the stub configuration from the environment.
func LoadConfig() Config {
	return Config{
		Issuer:          getEnvOrDefault("AUTHSTUB_ISSUER", "authstub"),
		AccessTTL:       getEnvDurationOrDefault("AUTHSTUB_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:      getEnvDurationOrDefault("AUTHSTUB_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		RotateRefresh:   getEnvBoolOrDefault("AUTHSTUB_ROTATE_REFRESH", false),
		ChallengeTTL:    getEnvDurationOrDefault("AUTHSTUB_CHALLENGE_TTL", 5*time.Minute),
		MagicLinkTTL:    getEnvDurationOrDefault("AUTHSTUB_MAGIC_LINK_TTL", 15*time.Minute),
		MaxCodeAttempts: getEnvIntOrDefault("AUTHSTUB_MAX_CODE_ATTEMPTS", 5),
		OAuthProvider:   getEnvOrDefault("AUTHSTUB_OAUTH_PROVIDER", "https://provider.example.com/authorize"),
		LoginLimit:      httpx.RateLimitFromEnv("AUTHSTUB_LOGIN_LIMIT", httpx.LoginLimit),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
	}
}

// withDefaults fills the zero fields of a hand-built Config, so tests only
// set what they care about.
func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = "authstub"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.MagicLinkTTL <= 0 {
		c.MagicLinkTTL = 15 * time.Minute
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = 5
	}
	if c.OAuthProvider == "" {
		c.OAuthProvider = "https://provider.example.com/authorize"
	}
	return c
}

func (c Config) hashParams() cryptox.Argon2Params {
	if c.HashParams.Memory == 0 {
		return cryptox.DefaultArgon2Params
	}
	return c.HashParams
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
