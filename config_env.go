package greenauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvJWTSecret            = "JWT_SECRET"
	EnvJWTAlgorithm         = "JWT_ALGORITHM"
	EnvAccessTokenMinutes   = "ACCESS_TOKEN_MINUTES"
	EnvRefreshTokenDays     = "REFRESH_TOKEN_DAYS"
	EnvPasswordMinLength    = "PASSWORD_MIN_LENGTH"
	EnvLoginMaxAttempts     = "LOGIN_MAX_ATTEMPTS"
	EnvLoginCooldownSeconds = "LOGIN_COOLDOWN_SECONDS"
)

// Upper bounds for numeric environment values. They keep the derived
// durations far from overflow.
const (
	maxAccessTokenMinutes   = 24 * 60
	maxRefreshTokenDays     = 3650
	maxPasswordMinLength    = 1024
	maxLoginAttempts        = 1000
	maxLoginCooldownSeconds = 7 * 24 * 60 * 60
)

// ConfigFromEnv starts from DefaultConfig and applies the environment
// variables above through lookup (os.LookupEnv when nil). JWT_SECRET is
// required. The result is validated before it is returned.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()

	secret, ok := lookup(EnvJWTSecret)
	if !ok || strings.TrimSpace(secret) == "" {
		return Config{}, configError(EnvJWTSecret + " is required")
	}
	cfg.JWT.Secret = []byte(secret)

	if v, ok := lookupTrimmed(lookup, EnvJWTAlgorithm); ok {
		cfg.JWT.Algorithm = strings.ToUpper(v)
	}

	if err := envInt(lookup, EnvAccessTokenMinutes, maxAccessTokenMinutes, func(n int) { cfg.JWT.AccessTTL = time.Duration(n) * time.Minute }); err != nil {
		return Config{}, err
	}
	if err := envInt(lookup, EnvRefreshTokenDays, maxRefreshTokenDays, func(n int) { cfg.Refresh.TTL = time.Duration(n) * 24 * time.Hour }); err != nil {
		return Config{}, err
	}
	if err := envInt(lookup, EnvPasswordMinLength, maxPasswordMinLength, func(n int) { cfg.Password.MinLength = n }); err != nil {
		return Config{}, err
	}
	if err := envInt(lookup, EnvLoginMaxAttempts, maxLoginAttempts, func(n int) { cfg.Security.MaxLoginAttempts = n }); err != nil {
		return Config{}, err
	}
	if err := envInt(lookup, EnvLoginCooldownSeconds, maxLoginCooldownSeconds, func(n int) { cfg.Security.LoginCooldownDuration = time.Duration(n) * time.Second }); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func envInt(lookup func(string) (string, bool), key string, limit int, apply func(int)) error {
	v, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > limit {
		return fmt.Errorf("%w: %s must be an integer between 0 and %d, got %q", ErrConfiguration, key, limit, v)
	}
	apply(n)
	return nil
}
