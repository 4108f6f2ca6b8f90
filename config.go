package greenauth

import (
	"time"

	"github.com/MrEthical07/greenauth/jwt"
	"github.com/MrEthical07/greenauth/password"
)

// Config is the immutable engine configuration. Build copies it; later
// changes to the caller's value have no effect.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing.
type JWTConfig struct {
	// Secret is required and must be at least 32 bytes.
	Secret    []byte
	Algorithm string // "HS256" (default), "HS384", "HS512"
	AccessTTL time.Duration
	Issuer    string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token lifetime.
type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost profile and length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling. Throttling needs a Redis client
// on the Builder; without one it is off.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	RateLimitPrefix       string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls asynchronous audit event delivery.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// DrainTimeout bounds how long Close flushes queued events. Zero waits
	// for the queue to empty.
	DrainTimeout time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: HS256, 15 minute access
// tokens, 14 day refresh tokens, throttling at 5 failures per 15 minutes.
// The secret is left empty and must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			Algorithm: string(jwt.HS256),
			AccessTTL: 15 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL: 14 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      pw.MinLength,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			RateLimitPrefix:       "gl",
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig: HS512, 5 minute access tokens,
// 7 day refresh tokens, stricter throttling and a costlier hash.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Algorithm = string(jwt.HS512)
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.Refresh.TTL = 7 * 24 * time.Hour
	cfg.Password.Memory = 128 * 1024
	cfg.Password.MinLength = 12
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = 30 * time.Minute
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		MinLength:   c.Password.MinLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) == 0 {
		return configError("JWT Secret is required")
	}
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return configError("JWT Secret must be at least 32 bytes")
	}
	if _, err := jwt.ParseAlgorithm(c.JWT.Algorithm); err != nil {
		return configError("unsupported JWT Algorithm " + c.JWT.Algorithm)
	}
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT AccessTTL must be > 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return configError("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return configError("Refresh TTL must exceed JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 || c.Password.Memory > 1024*1024 {
		return configError("Password Memory must be between 8192 KB and 1 GiB")
	}
	if c.Password.Time < 1 || c.Password.Time > 64 {
		return configError("Password Time must be between 1 and 64")
	}
	if c.Password.Parallelism < 1 || c.Password.Parallelism > 64 {
		return configError("Password Parallelism must be between 1 and 64")
	}
	if c.Password.SaltLength < 16 {
		return configError("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 || c.Password.KeyLength > 256 {
		return configError("Password KeyLength must be between 16 and 256")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > 1024 {
		return configError("Password MinLength must be between 1 and 1024")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return configError("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return configError("Security LoginCooldownDuration must be > 0 when throttling is on")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return configError("Audit DrainTimeout must be >= 0")
	}

	return nil
}
