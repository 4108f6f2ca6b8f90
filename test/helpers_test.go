//go:build integration
// +build integration

package test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/greenauth"
	"github.com/MrEthical07/greenauth/docstore"
	"github.com/MrEthical07/greenauth/docstore/pgdoc"
	"github.com/MrEthical07/greenauth/docstore/redisdoc"
)

const (
	testPassword = "integration-password-1"
	testSecret   = "greenauth-integration-secret-0123456789"
)

// backend is one document store the suite runs against. rdb is nil for
// backends without Redis, which also disables login throttling.
type backend struct {
	docs docstore.Store
	rdb  redis.UniversalClient
}

type backendMode struct {
	name  string
	setup func(t *testing.T) backend
}

// backendModes returns the stores to test. miniredis is always available.
// A real Redis is used when REDIS_ADDR is set and Postgres when
// GREENAUTH_TEST_POSTGRES_DSN is set.
func backendModes(t *testing.T) []backendMode {
	t.Helper()

	modes := []backendMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) backend {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
				return backend{docs: redisdoc.NewStore(rdb, "it", greenauth.Schema()), rdb: rdb}
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, backendMode{
			name: "redis:" + addr,
			setup: func(t *testing.T) backend {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return backend{docs: redisdoc.NewStore(rdb, "it", greenauth.Schema()), rdb: rdb}
			},
		})
	}

	if dsn := os.Getenv("GREENAUTH_TEST_POSTGRES_DSN"); dsn != "" {
		modes = append(modes, backendMode{
			name: "postgres",
			setup: func(t *testing.T) backend {
				t.Helper()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				store, err := pgdoc.Open(ctx, dsn, greenauth.Schema())
				if err != nil {
					t.Skipf("cannot open Postgres: %v", err)
				}
				truncate := func() { _, _ = store.DB().Exec("TRUNCATE documents") }
				truncate()
				t.Cleanup(func() { truncate(); _ = store.Close() })
				return backend{docs: store}
			},
		})
	}

	return modes
}

func newEngine(t *testing.T, be backend, mutate func(*greenauth.Config)) *greenauth.Engine {
	t.Helper()

	cfg := greenauth.DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	b := greenauth.New().
		WithConfig(cfg).
		WithDocStore(be.docs).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if be.rdb != nil {
		b = b.WithRedis(be.rdb)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func createAccount(t *testing.T, engine *greenauth.Engine, username string, role greenauth.Role) *greenauth.Account {
	t.Helper()

	acc, err := engine.CreateAccount(context.Background(), greenauth.CreateAccountRequest{
		Username: username,
		Email:    username + "@greenhouse.local",
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create %s failed: %v", username, err)
	}
	return acc
}

func login(t *testing.T, engine *greenauth.Engine, username string) greenauth.TokenPair {
	t.Helper()

	pair, err := engine.Login(context.Background(), username+"@greenhouse.local", testPassword, "integration")
	if err != nil {
		t.Fatalf("login %s failed: %v", username, err)
	}
	return pair
}
