// Command greenauthd serves the greenhouse authentication API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/greenauth"
	"github.com/MrEthical07/greenauth/docstore"
	"github.com/MrEthical07/greenauth/docstore/pgdoc"
	"github.com/MrEthical07/greenauth/docstore/redisdoc"
	"github.com/MrEthical07/greenauth/internal/audit"
	"github.com/MrEthical07/greenauth/internal/httpapi"
	"github.com/MrEthical07/greenauth/internal/logging"
	"github.com/MrEthical07/greenauth/internal/serverconfig"
)

var version = "dev"

const sentryFlushTimeout = 2 * time.Second

// backend is an opened document store plus what the engine and health
// check need from it.
type backend struct {
	docs  docstore.Store
	ping  httpapi.Pinger
	redis redis.UniversalClient
	close func()
}

func main() {
	configPath := flag.String("config", os.Getenv("GREENAUTH_CONFIG"), "path to YAML config file")
	dev := flag.Bool("dev", false, "use an in-process miniredis backend")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*configPath, *dev); err != nil {
		fmt.Fprintf(os.Stderr, "greenauthd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, dev bool) error {
	cfg, err := serverconfig.Load(configPath)
	if err != nil {
		return err
	}
	if dev {
		cfg.Backend.Kind = serverconfig.BackendDev
	}

	logger := logging.New(cfg.Logging, version)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          "greenauth@" + version,
			AttachStacktrace: true,
		}); err != nil {
			logger.Error("sentry init failed", "error", err)
		}
		defer sentry.Flush(sentryFlushTimeout)
	}

	authCfg, err := greenauth.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return err
	}
	authCfg.Audit.Enabled = cfg.Audit.Enabled
	if cfg.Audit.BufferSize > 0 {
		authCfg.Audit.BufferSize = cfg.Audit.BufferSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	builder := greenauth.New().
		WithConfig(authCfg).
		WithDocStore(be.docs).
		WithLogger(logger)
	if be.redis != nil {
		builder = builder.WithRedis(be.redis)
	}

	if cfg.Audit.Enabled {
		sink, closeSink, err := auditSink(cfg, logger)
		if err != nil {
			return err
		}
		defer closeSink()
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("auth engine ready",
		"backend", cfg.Backend.Kind,
		"algorithm", report.SigningAlgorithm,
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"rate_limiting", report.RateLimitingActive,
		"audit", report.AuditEnabled,
	)

	if cfg.Bootstrap.Email != "" {
		created, err := engine.BootstrapAdmin(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Email, cfg.Bootstrap.Password)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", "email", cfg.Bootstrap.Email)
		}
	}

	srv, err := httpapi.New(httpapi.Deps{
		Config:  cfg.Server,
		Auth:    engine,
		Pinger:  be.ping,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func openBackend(ctx context.Context, cfg *serverconfig.Config, logger *slog.Logger) (*backend, error) {
	schema := greenauth.Schema()

	switch cfg.Backend.Kind {
	case serverconfig.BackendPostgres:
		store, err := openPostgres(ctx, cfg.Backend.Postgres, schema)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres document store", "migrate", cfg.Backend.Postgres.Migrate)
		return &backend{
			docs:  store,
			ping:  store,
			close: func() { _ = store.Close() },
		}, nil

	case serverconfig.BackendDev:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		store := redisdoc.NewStore(client, cfg.Backend.Redis.KeyPrefix, schema)
		logger.Warn("using in-process miniredis; data is lost on exit", "addr", mr.Addr())
		return &backend{
			docs:  store,
			ping:  store,
			redis: client,
			close: func() {
				_ = client.Close()
				mr.Close()
			},
		}, nil

	default:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Backend.Redis.Addr},
			Password: cfg.Backend.Redis.Password,
			DB:       cfg.Backend.Redis.DB,
		})
		store := redisdoc.NewStore(client, cfg.Backend.Redis.KeyPrefix, schema)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("using redis document store", "addr", cfg.Backend.Redis.Addr)
		return &backend{
			docs:  store,
			ping:  store,
			redis: client,
			close: func() { _ = client.Close() },
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg serverconfig.PostgresConfig, schema docstore.Schema) (*pgdoc.Store, error) {
	if cfg.Migrate {
		return pgdoc.Open(ctx, cfg.DSN, schema)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	store, err := pgdoc.New(db, schema)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// auditSink combines the configured audit destinations.
func auditSink(cfg *serverconfig.Config, logger *slog.Logger) (greenauth.AuditSink, func(), error) {
	var (
		sinks   greenauth.MultiSink
		closers []func()
	)

	if cfg.Audit.Stdout {
		sinks = append(sinks, greenauth.NewJSONWriterSink(os.Stdout))
	}

	if cfg.Audit.MQTT.Enabled {
		mqttCfg := cfg.MQTT()
		client, err := audit.DialMQTT(mqttCfg)
		if err != nil {
			return nil, nil, err
		}
		sink := greenauth.NewMQTTSink(client, mqttCfg.TopicPrefix, mqttCfg.QoS)
		sink.OnError = func(err error) {
			logger.Warn("audit publish failed", "error", err)
		}
		sinks = append(sinks, sink)
		closers = append(closers, func() { client.Disconnect(250) })
		logger.Info("publishing audit events", "broker", mqttCfg.Host, "topic_prefix", mqttCfg.TopicPrefix)
	}

	if len(sinks) == 0 {
		logger.Warn("audit enabled without a destination; events go to stderr")
		sinks = append(sinks, greenauth.NewJSONWriterSink(os.Stderr))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sinks, closeAll, nil
}
