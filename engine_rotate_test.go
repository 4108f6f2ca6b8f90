package greenauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/greenauth/docstore"
	"github.com/MrEthical07/greenauth/internal"
	"github.com/MrEthical07/greenauth/refresh"
)

func TestRotateSucceedsOnceThenReportsReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	first := loginPair(t, env, "grower@example.com", "tablet")

	env.clock.Advance(time.Minute)
	second, err := env.engine.Rotate(context.Background(), first.RefreshToken, "")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}
	if second.AccessToken == first.AccessToken {
		t.Fatal("rotation must issue a new access token")
	}

	old, _, err := env.engine.refresh.FindByRaw(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !old.Revoked() || !old.RevokedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected presented record revoked at %v, got %v", env.clock.Now(), old.RevokedAt)
	}
	next, _, err := env.engine.refresh.FindByRaw(context.Background(), second.RefreshToken)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if next.Revoked() {
		t.Fatal("new record must not be revoked")
	}
	if next.Device != "tablet" {
		t.Fatalf("expected device carried over from presented record, got %q", next.Device)
	}

	_, err = env.engine.Rotate(context.Background(), first.RefreshToken, "")
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on reuse, got %v", err)
	}

	// Reuse does not revoke the rest of the family.
	if _, err := env.engine.Rotate(context.Background(), second.RefreshToken, "phone"); err != nil {
		t.Fatalf("rotating the live token after reuse failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected one reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
	if snap.Counters[MetricRefreshSuccess] != 2 {
		t.Fatalf("expected two successful rotations, got %d", snap.Counters[MetricRefreshSuccess])
	}
}

func TestRotateUsesRequestedDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	first := loginPair(t, env, "grower@example.com", "tablet")

	second, err := env.engine.Rotate(context.Background(), first.RefreshToken, "kiosk")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	rec, _, err := env.engine.refresh.FindByRaw(context.Background(), second.RefreshToken)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.Device != "kiosk" {
		t.Fatalf("expected device kiosk, got %q", rec.Device)
	}
}

func TestRotateExpiryBoundary(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)

	atExpiry := loginPair(t, env, "grower@example.com", "")
	pastExpiry := loginPair(t, env, "grower@example.com", "")

	env.clock.Advance(14 * 24 * time.Hour)
	if _, err := env.engine.Rotate(context.Background(), atExpiry.RefreshToken, ""); err != nil {
		t.Fatalf("rotation at the expiry instant failed: %v", err)
	}

	env.clock.Advance(time.Second)
	_, err := env.engine.Rotate(context.Background(), pastExpiry.RefreshToken, "")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshExpired]; got != 1 {
		t.Fatalf("expected one expired rotation, got %d", got)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	pair := loginPair(t, env, "grower@example.com", "")

	const n = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Rotate(context.Background(), pair.RefreshToken, "")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, revoked int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if ok != 1 || revoked != n-1 {
		t.Fatalf("expected 1 winner and %d revoked, got %d and %d", n-1, ok, revoked)
	}
}

func TestRotateRejectsDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	pair := loginPair(t, env, "grower@example.com", "")

	if err := env.engine.DeactivateAccount(context.Background(), "admin-id", acc.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err := env.engine.Rotate(context.Background(), pair.RefreshToken, "")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	rec, _, _ := env.engine.refresh.FindByRaw(context.Background(), pair.RefreshToken)
	if !rec.Revoked() {
		t.Fatal("presented record must be revoked even when the account is disabled")
	}
}

func TestRotateRejectsMissingAccount(t *testing.T) {
	env := newTestEnv(t, nil)

	raw, _, err := env.engine.refresh.Create(context.Background(), "0190f1d6-0000-7000-8000-000000000000", "", env.clock.Now())
	if err != nil {
		t.Fatalf("create record failed: %v", err)
	}

	_, err = env.engine.Rotate(context.Background(), raw, "")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRotateReloadsRole(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	pair := loginPair(t, env, "grower@example.com", "")

	applied, err := env.docs.UpdateIf(context.Background(), "accounts", acc.ID, nil, docstore.Fields{"role": "admin"})
	if err != nil || !applied {
		t.Fatalf("role update failed: applied=%v err=%v", applied, err)
	}

	// The old access token keeps its role until it expires.
	p, err := env.engine.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if p.Role != RoleUser {
		t.Fatalf("expected role from token, got %q", p.Role)
	}

	next, err := env.engine.Rotate(context.Background(), pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	p, err = env.engine.Authenticate(context.Background(), next.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if p.Role != RoleAdmin {
		t.Fatalf("expected reloaded admin role, got %q", p.Role)
	}
}

func TestRotateRejectsRecordWithoutExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)

	raw, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	if _, err := env.docs.Insert(context.Background(), refresh.Collection, docstore.Fields{
		"user_id":    acc.ID,
		"token_hash": internal.HashRefreshToken(raw),
		"created_at": docstore.FormatTime(env.clock.Now()),
		"device":     "legacy",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err = env.engine.Rotate(context.Background(), raw, "")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRotateRejectsUnknownAndMalformedTokens(t *testing.T) {
	env := newTestEnv(t, nil)

	unknown, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	for _, raw := range []string{"", "not-a-token", unknown, unknown + "x"} {
		if _, err := env.engine.Rotate(context.Background(), raw, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	pair := loginPair(t, env, "grower@example.com", "")

	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	rec, _, _ := env.engine.refresh.FindByRaw(context.Background(), pair.RefreshToken)
	if !rec.Revoked() {
		t.Fatal("expected record revoked after logout")
	}
	revokedAt := rec.RevokedAt

	env.clock.Advance(time.Minute)
	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}
	rec, _, _ = env.engine.refresh.FindByRaw(context.Background(), pair.RefreshToken)
	if !rec.RevokedAt.Equal(revokedAt) {
		t.Fatalf("second logout moved revoked_at from %v to %v", revokedAt, rec.RevokedAt)
	}

	if _, err := env.engine.Rotate(context.Background(), pair.RefreshToken, ""); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
}

func TestLogoutUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)

	unknown, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	if err := env.engine.Logout(context.Background(), unknown); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutLeavesAccessTokenValid(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env.engine, "grower", "grower@example.com", RoleUser)
	pair := loginPair(t, env, "grower@example.com", "")

	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.engine.Authenticate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("access token should stay valid until expiry: %v", err)
	}
}
