package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v, want 5", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v, want 10", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty p50 = %v", got)
	}
}

func TestRacePhaseHasSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := newEngine(client, "lt-test")
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	chains, err := seed(context.Background(), engine, 3)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	stats := runRotatePhase(context.Background(), engine, chains, 30, 4)
	if stats.failures != 0 || stats.ops != 30 {
		t.Fatalf("unexpected rotate stats %+v", stats)
	}

	res := runRacePhase(context.Background(), engine, chains, 6)
	if res.singleWinner != 3 || res.violations != 0 || res.errors != 0 {
		t.Fatalf("unexpected race result %+v", res)
	}
}
