package greenauth

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.Algorithm != "HS256" {
		t.Fatalf("expected HS256, got %s", cfg.JWT.Algorithm)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access TTL, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.Refresh.TTL != 14*24*time.Hour {
		t.Fatalf("expected 14d refresh TTL, got %v", cfg.Refresh.TTL)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("default config without secret must fail, got %v", err)
	}

	cfg.JWT.Secret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret failed: %v", err)
	}

	high := HighSecurityConfig()
	high.JWT.Secret = testSecret
	if err := high.Validate(); err != nil {
		t.Fatalf("high security config failed: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = nil }},
		{"short secret", func(c *Config) { c.JWT.Secret = []byte("0123456789abcdef0123456789abcde") }},
		{"unknown algorithm", func(c *Config) { c.JWT.Algorithm = "RS256" }},
		{"none algorithm", func(c *Config) { c.JWT.Algorithm = "none" }},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"zero refresh ttl", func(c *Config) { c.Refresh.TTL = 0 }},
		{"refresh not longer than access", func(c *Config) { c.Refresh.TTL = c.JWT.AccessTTL }},
		{"weak memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"zero time", func(c *Config) { c.Password.Time = 0 }},
		{"excessive time", func(c *Config) { c.Password.Time = 65 }},
		{"excessive memory", func(c *Config) { c.Password.Memory = 2 * 1024 * 1024 }},
		{"zero parallelism", func(c *Config) { c.Password.Parallelism = 0 }},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }},
		{"short key", func(c *Config) { c.Password.KeyLength = 8 }},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }},
		{"huge min length", func(c *Config) { c.Password.MinLength = 4096 }},
		{"negative attempts", func(c *Config) { c.Security.MaxLoginAttempts = -1 }},
		{"throttle without cooldown", func(c *Config) { c.Security.LoginCooldownDuration = 0 }},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{"negative drain timeout", func(c *Config) { c.Audit.DrainTimeout = -time.Second }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if KindOf(err) != KindConfiguration {
				t.Fatalf("expected configuration kind, got %v", KindOf(err))
			}
		})
	}
}

func TestConfigValidateAllowsDisabledThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 0
	cfg.Security.LoginCooldownDuration = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled throttle to validate, got %v", err)
	}
}

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestConfigFromEnv(t *testing.T) {
	cfg, err := ConfigFromEnv(envLookup(map[string]string{
		EnvJWTSecret:            string(testSecret),
		EnvJWTAlgorithm:         " hs512 ",
		EnvAccessTokenMinutes:   "5",
		EnvRefreshTokenDays:     "30",
		EnvPasswordMinLength:    "12",
		EnvLoginMaxAttempts:     "4",
		EnvLoginCooldownSeconds: "600",
	}))
	if err != nil {
		t.Fatalf("config from env failed: %v", err)
	}
	if string(cfg.JWT.Secret) != string(testSecret) {
		t.Fatal("secret not applied")
	}
	if cfg.JWT.Algorithm != "HS512" {
		t.Fatalf("expected HS512, got %s", cfg.JWT.Algorithm)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute || cfg.Refresh.TTL != 30*24*time.Hour {
		t.Fatalf("unexpected ttls %v %v", cfg.JWT.AccessTTL, cfg.Refresh.TTL)
	}
	if cfg.Password.MinLength != 12 {
		t.Fatalf("expected min length 12, got %d", cfg.Password.MinLength)
	}
	if cfg.Security.MaxLoginAttempts != 4 || cfg.Security.LoginCooldownDuration != 10*time.Minute {
		t.Fatalf("unexpected throttle %+v", cfg.Security)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv(envLookup(map[string]string{EnvJWTSecret: string(testSecret)}))
	if err != nil {
		t.Fatalf("config from env failed: %v", err)
	}
	if cfg.JWT.Algorithm != "HS256" || cfg.JWT.AccessTTL != 15*time.Minute || cfg.Refresh.TTL != 14*24*time.Hour {
		t.Fatalf("expected defaults, got %+v %+v", cfg.JWT, cfg.Refresh)
	}
}

func TestConfigFromEnvFailures(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"blank secret":   {EnvJWTSecret: "   "},
		"short secret":   {EnvJWTSecret: "short"},
		"bad minutes":    {EnvJWTSecret: string(testSecret), EnvAccessTokenMinutes: "fifteen"},
		"negative days":  {EnvJWTSecret: string(testSecret), EnvRefreshTokenDays: "-1"},
		"bad algorithm":  {EnvJWTSecret: string(testSecret), EnvJWTAlgorithm: "ES256"},
		"huge minutes":   {EnvJWTSecret: string(testSecret), EnvAccessTokenMinutes: "153722867280912931"},
		"huge days":      {EnvJWTSecret: string(testSecret), EnvRefreshTokenDays: "106751992"},
		"minutes cap":    {EnvJWTSecret: string(testSecret), EnvAccessTokenMinutes: "1441"},
		"days cap":       {EnvJWTSecret: string(testSecret), EnvRefreshTokenDays: "3651"},
		"cooldown cap":   {EnvJWTSecret: string(testSecret), EnvLoginCooldownSeconds: "99999999999"},
	}
	for name, env := range cases {
		if _, err := ConfigFromEnv(envLookup(env)); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrInvalidCredentials, KindInvalidCredentials},
		{fmt.Errorf("wrapped: %w", ErrTokenRevoked), KindTokenRevoked},
		{storeError(errors.New("connection refused")), KindStoreUnavailable},
		{configError("bad"), KindConfiguration},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if KindTokenExpired.String() != "token_expired" {
		t.Fatalf("unexpected kind name %q", KindTokenExpired.String())
	}
}

func TestSecurityReport(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" || r.SecretBytes != len(testSecret) {
		t.Fatalf("unexpected signing report %+v", r)
	}
	if r.AccessTTL != 15*time.Minute || r.RefreshTTL != 14*24*time.Hour {
		t.Fatalf("unexpected ttl report %+v", r)
	}
	if !r.RateLimitingActive || !r.MetricsEnabled || r.AuditEnabled {
		t.Fatalf("unexpected feature report %+v", r)
	}
}
