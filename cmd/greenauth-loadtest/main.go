// Command greenauth-loadtest drives authenticate, rotate and concurrent
// rotation race phases against an engine on Redis or miniredis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/greenauth"
	"github.com/MrEthical07/greenauth/docstore/redisdoc"
)

const seedPassword = "loadtest-password-123"

// chain is one account's current token pair. mu serializes rotation so the
// chain always holds the live refresh token.
type chain struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + rotate)")
		racers      = flag.Int("racers", 8, "goroutines presenting the same refresh token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "document key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0, racers > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	chains, err := seed(ctx, engine, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runAuthenticatePhase(ctx, engine, chains, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, engine, chains, *ops, *concurrency)
	race := runRacePhase(ctx, engine, chains, *racers)

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("rotate", rotateStats)
	fmt.Printf("race: chains=%d racers=%d single_winner=%d violations=%d errors=%d\n",
		race.chains, *racers, race.singleWinner, race.violations, race.errors)

	if race.violations > 0 {
		os.Exit(1)
	}
}

func newEngine(client redis.UniversalClient, prefix string) (*greenauth.Engine, error) {
	cfg := greenauth.DefaultConfig()
	cfg.JWT.Secret = []byte("greenauth-loadtest-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.MaxLoginAttempts = 0
	cfg.Security.LoginCooldownDuration = 0
	cfg.Metrics.Enabled = true

	return greenauth.New().
		WithConfig(cfg).
		WithDocStore(redisdoc.NewStore(client, prefix, greenauth.Schema())).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

func seed(ctx context.Context, engine *greenauth.Engine, n int) ([]*chain, error) {
	chains := make([]*chain, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("grower-%d@loadtest.local", i)
		if _, err := engine.CreateAccount(ctx, greenauth.CreateAccountRequest{
			Username: fmt.Sprintf("grower-%d", i),
			Email:    email,
			Password: seedPassword,
		}); err != nil && !errors.Is(err, greenauth.ErrAccountExists) {
			return nil, err
		}
		pair, err := engine.Login(ctx, email, seedPassword, "loadtest")
		if err != nil {
			return nil, err
		}
		chains[i] = &chain{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	return chains, nil
}

func runAuthenticatePhase(ctx context.Context, engine *greenauth.Engine, chains []*chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand) error {
		c := chains[r.Intn(len(chains))]
		c.mu.Lock()
		token := c.access
		c.mu.Unlock()
		_, err := engine.Authenticate(ctx, token)
		return err
	})
}

func runRotatePhase(ctx context.Context, engine *greenauth.Engine, chains []*chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand) error {
		c := chains[r.Intn(len(chains))]
		c.mu.Lock()
		defer c.mu.Unlock()
		pair, err := engine.Rotate(ctx, c.refresh, "")
		if err != nil {
			return err
		}
		c.access, c.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})
}

// runPhase runs ops calls of op across concurrency workers and records
// per-call latency.
func runPhase(ops, concurrency int, seedSalt int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type raceResult struct {
	chains       int
	singleWinner int
	violations   int
	errors       int
}

// runRacePhase presents every chain's live refresh token from racers
// goroutines at once. Exactly one must succeed; the rest must see
// ErrTokenRevoked.
func runRacePhase(ctx context.Context, engine *greenauth.Engine, chains []*chain, racers int) raceResult {
	res := raceResult{chains: len(chains)}

	for _, c := range chains {
		var (
			wg      sync.WaitGroup
			wins    atomic.Int32
			revoked atomic.Int32
			other   atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Rotate(ctx, c.refresh, "racer")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, greenauth.ErrTokenRevoked):
					revoked.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		switch {
		case other.Load() > 0:
			res.errors++
		case wins.Load() == 1 && int(revoked.Load()) == racers-1:
			res.singleWinner++
		default:
			res.violations++
		}
	}
	return res
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
