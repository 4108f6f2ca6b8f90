package serverconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/greenauth/internal/audit"
	"github.com/MrEthical07/greenauth/internal/logging"
)

// Backend names accepted in backend.kind.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDev      = "dev"
)

// Config holds the daemon settings that sit around the engine: listener,
// document store backend, logging, audit fan-out and error reporting. Token
// and password settings come from greenauth.ConfigFromEnv.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Logging   logging.Config  `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// TrustProxy makes the client IP come from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
	// MetricsAddr serves /metrics on a separate, unauthenticated listener.
	// Bind it to a private interface. When empty, /metrics stays on Addr
	// and requires an admin token.
	MetricsAddr string `yaml:"metrics_addr"`
}

// BackendConfig selects and configures the document store.
type BackendConfig struct {
	Kind     string         `yaml:"kind"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig configures the Postgres document store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
	// Migrate runs the embedded migrations at startup.
	Migrate bool `yaml:"migrate"`
}

// AuditConfig controls where audit events are sent.
type AuditConfig struct {
	Enabled    bool       `yaml:"enabled"`
	BufferSize int        `yaml:"buffer_size"`
	Stdout     bool       `yaml:"stdout"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the MQTT audit publisher.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// BootstrapConfig names the admin created at startup when no account has
// its email. Leaving Email empty skips bootstrapping.
type BootstrapConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then GREENAUTH_* environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file or override is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Backend: BackendConfig{
			Kind: BackendRedis,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "greenauth",
			},
			Postgres: PostgresConfig{Migrate: true},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			MQTT: MQTTConfig{
				Port:        1883,
				ClientID:    "greenauth",
				TopicPrefix: "greenhouse/auth/audit",
				QoS:         1,
			},
		},
		Sentry: SentryConfig{Environment: "development"},
		Bootstrap: BootstrapConfig{
			Username: "admin",
		},
	}
}

// applyEnvOverrides follows the GREENAUTH_SECTION_KEY pattern.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, key+" must be a boolean")
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, key+" must be an integer")
			return
		}
		*dst = n
	}

	// Server
	str("GREENAUTH_SERVER_ADDR", &cfg.Server.Addr)
	boolean("GREENAUTH_SERVER_TRUST_PROXY", &cfg.Server.TrustProxy)
	str("GREENAUTH_METRICS_ADDR", &cfg.Server.MetricsAddr)

	// Backend
	str("GREENAUTH_BACKEND_KIND", &cfg.Backend.Kind)
	str("GREENAUTH_REDIS_ADDR", &cfg.Backend.Redis.Addr)
	str("GREENAUTH_REDIS_PASSWORD", &cfg.Backend.Redis.Password)
	integer("GREENAUTH_REDIS_DB", &cfg.Backend.Redis.DB)
	str("GREENAUTH_POSTGRES_DSN", &cfg.Backend.Postgres.DSN)
	boolean("GREENAUTH_POSTGRES_MIGRATE", &cfg.Backend.Postgres.Migrate)

	// Logging
	str("GREENAUTH_LOG_LEVEL", &cfg.Logging.Level)
	str("GREENAUTH_LOG_FORMAT", &cfg.Logging.Format)

	// Audit
	boolean("GREENAUTH_AUDIT_ENABLED", &cfg.Audit.Enabled)
	boolean("GREENAUTH_AUDIT_MQTT_ENABLED", &cfg.Audit.MQTT.Enabled)
	str("GREENAUTH_MQTT_HOST", &cfg.Audit.MQTT.Host)
	integer("GREENAUTH_MQTT_PORT", &cfg.Audit.MQTT.Port)
	str("GREENAUTH_MQTT_USERNAME", &cfg.Audit.MQTT.Username)
	str("GREENAUTH_MQTT_PASSWORD", &cfg.Audit.MQTT.Password)

	// Sentry
	str("SENTRY_DSN", &cfg.Sentry.DSN)
	str("GREENAUTH_SENTRY_DSN", &cfg.Sentry.DSN)
	str("GREENAUTH_ENV", &cfg.Sentry.Environment)

	// Bootstrap admin
	str("GREENAUTH_ADMIN_USERNAME", &cfg.Bootstrap.Username)
	str("GREENAUTH_ADMIN_EMAIL", &cfg.Bootstrap.Email)
	str("GREENAUTH_ADMIN_PASSWORD", &cfg.Bootstrap.Password)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server read and write timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be positive")
	}

	switch c.Backend.Kind {
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			errs = append(errs, "backend.redis.addr is required")
		}
	case BackendPostgres:
		if c.Backend.Postgres.DSN == "" {
			errs = append(errs, "backend.postgres.dsn is required (set GREENAUTH_POSTGRES_DSN)")
		}
	case BackendDev:
	default:
		errs = append(errs, fmt.Sprintf("backend.kind %q must be redis, postgres or dev", c.Backend.Kind))
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, "audit.buffer_size must be positive")
	}
	if c.Audit.MQTT.Enabled {
		if c.Audit.MQTT.Host == "" {
			errs = append(errs, "audit.mqtt.host is required")
		}
		if c.Audit.MQTT.Port < 1 || c.Audit.MQTT.Port > 65535 {
			errs = append(errs, "audit.mqtt.port must be between 1 and 65535")
		}
		if c.Audit.MQTT.QoS < 0 || c.Audit.MQTT.QoS > 2 {
			errs = append(errs, "audit.mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.Bootstrap.Email != "" && c.Bootstrap.Password == "" {
		errs = append(errs, "bootstrap.password is required when bootstrap.email is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MQTT converts the audit broker section for audit.DialMQTT.
func (c *Config) MQTT() audit.MQTTConfig {
	m := c.Audit.MQTT
	return audit.MQTTConfig{
		Host:        m.Host,
		Port:        m.Port,
		TLS:         m.TLS,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Password:    m.Password,
		TopicPrefix: m.TopicPrefix,
		QoS:         byte(m.QoS),
	}
}
