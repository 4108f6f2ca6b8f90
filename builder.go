package greenauth

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/MrEthical07/greenauth/docstore"
	"github.com/MrEthical07/greenauth/internal/audit"
	"github.com/MrEthical07/greenauth/internal/rate"
	"github.com/MrEthical07/greenauth/internal/stores"
	"github.com/MrEthical07/greenauth/jwt"
	"github.com/MrEthical07/greenauth/password"
	"github.com/MrEthical07/greenauth/refresh"
	"github.com/redis/go-redis/v9"
)

// Schema returns the collections and indexes the engine needs from its
// document store.
func Schema() docstore.Schema {
	return docstore.Schema{
		stores.AccountsCollection: stores.AccountIndexes(),
		refresh.Collection:        refresh.Indexes(),
	}
}

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config
	docs   docstore.Store
	redis  redis.UniversalClient
	clock  Clock
	logger *slog.Logger

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig sets the engine configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDocStore sets the document store holding accounts and refresh token
// records. It must have been created with Schema().
func (b *Builder) WithDocStore(docs docstore.Store) *Builder {
	b.docs = docs
	return b
}

// WithRedis enables login throttling counters on client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock replaces the system clock, mainly for tests.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A missing or
// short secret fails with ErrConfiguration.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.docs == nil {
		return nil, configError("document store required")
	}

	alg, err := jwt.ParseAlgorithm(cfg.JWT.Algorithm)
	if err != nil {
		return nil, configError(err.Error())
	}
	codec, err := jwt.NewCodec(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.Secret),
		Algorithm: alg,
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, configError(err.Error())
	}

	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, configError(err.Error())
	}
	// Hashed once so unknown-email logins pay for one verification like
	// every other attempt.
	dummy, err := hasher.Hash(strings.Repeat("g", max(cfg.Password.MinLength, 32)))
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		clock:       b.clock,
		logger:      b.logger,
		accounts:    stores.NewAccountStore(b.docs),
		refresh:     refresh.NewStore(b.docs, cfg.Refresh.TTL),
		codec:       codec,
		hasher:      hasher,
		dummyDigest: dummy,
	}
	if engine.clock == nil {
		engine.clock = SystemClock()
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}

	if b.redis != nil {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			Prefix:                cfg.Security.RateLimitPrefix,
		})
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		DrainTimeout: cfg.Audit.DrainTimeout,
		Logger:       engine.logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
