package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/greenauth/internal/stores"
	"github.com/MrEthical07/greenauth/refresh"
)

var flowNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type loginFixture struct {
	accounts    map[string]stores.Account
	verifyCalls int
	dummyCalls  int
	touched     []string
	replaced    map[string]string
	issued      []stores.Account
	touchErr    error
	rehash      bool
}

func newLoginFixture() *loginFixture {
	return &loginFixture{
		accounts: map[string]stores.Account{
			"grower@example.com": {ID: "u1", Email: "grower@example.com", PasswordHash: "hash:secret-pass", Role: "user", Active: true},
			"off@example.com":    {ID: "u2", Email: "off@example.com", PasswordHash: "hash:secret-pass", Role: "user", Active: false},
		},
		replaced: map[string]string{},
	}
}

func (f *loginFixture) deps() LoginDeps {
	return LoginDeps{
		Now: func() time.Time { return flowNow },
		FindAccountByEmail: func(_ context.Context, email string) (stores.Account, error) {
			acc, ok := f.accounts[email]
			if !ok {
				return stores.Account{}, stores.ErrAccountNotFound
			}
			return acc, nil
		},
		TouchLogin: func(_ context.Context, id string, _ time.Time) error {
			f.touched = append(f.touched, id)
			return f.touchErr
		},
		ReplacePasswordHash: func(_ context.Context, id, current, next string) (bool, error) {
			f.replaced[id] = next
			return true, nil
		},
		VerifyPassword: func(plaintext, digest string) bool {
			f.verifyCalls++
			return digest == "hash:"+plaintext
		},
		DummyVerify:  func(string) { f.dummyCalls++ },
		NeedsRehash:  func(string) bool { return f.rehash },
		HashPassword: func(p string) (string, error) { return "hash2:" + p, nil },
		Issue: func(_ context.Context, acc stores.Account, device string, now time.Time) (Pair, error) {
			f.issued = append(f.issued, acc)
			return Pair{AccessToken: "access-" + acc.ID, RefreshToken: "refresh-" + device}, nil
		},
	}
}

func TestRunLoginSuccess(t *testing.T) {
	f := newLoginFixture()
	res := RunLogin(context.Background(), "  Grower@Example.com ", "secret-pass", "gateway", f.deps())

	if res.Failure != LoginFailureNone {
		t.Fatalf("expected success, got kind %d err %v", res.Failure, res.Err)
	}
	if res.UserID != "u1" || res.Role != "user" || res.Pair.RefreshToken != "refresh-gateway" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.touched) != 1 || f.touched[0] != "u1" {
		t.Fatalf("expected last login touch, got %v", f.touched)
	}
	if len(f.replaced) != 0 {
		t.Fatal("expected no rehash for current digest")
	}
}

func TestRunLoginUnknownEmailRunsDummyVerify(t *testing.T) {
	f := newLoginFixture()
	res := RunLogin(context.Background(), "nobody@example.com", "whatever", "", f.deps())

	if res.Failure != LoginFailureUnknownEmail {
		t.Fatalf("expected unknown email, got %d", res.Failure)
	}
	if f.dummyCalls != 1 {
		t.Fatalf("expected one dummy verification, got %d", f.dummyCalls)
	}
	if len(f.issued) != 0 {
		t.Fatal("no tokens may be issued")
	}
}

func TestRunLoginDisabledStillHashes(t *testing.T) {
	for _, pw := range []string{"secret-pass", "wrong-pass"} {
		f := newLoginFixture()
		res := RunLogin(context.Background(), "off@example.com", pw, "", f.deps())

		if res.Failure != LoginFailureDisabled {
			t.Fatalf("password %q: expected disabled, got %d", pw, res.Failure)
		}
		if f.verifyCalls != 1 || f.dummyCalls != 0 {
			t.Fatalf("expected exactly one real verification, got verify=%d dummy=%d", f.verifyCalls, f.dummyCalls)
		}
		if len(f.touched) != 0 || len(f.issued) != 0 {
			t.Fatal("disabled login must have no side effects")
		}
	}
}

func TestRunLoginWrongPassword(t *testing.T) {
	f := newLoginFixture()
	res := RunLogin(context.Background(), "grower@example.com", "nope-nope", "", f.deps())

	if res.Failure != LoginFailurePassword {
		t.Fatalf("expected password failure, got %d", res.Failure)
	}
	if len(f.touched) != 0 || len(f.issued) != 0 {
		t.Fatal("failed login must not touch or issue")
	}
}

func TestRunLoginBestEffortSideEffects(t *testing.T) {
	f := newLoginFixture()
	f.touchErr = errors.New("store down")
	f.rehash = true

	var warned int
	deps := f.deps()
	deps.Warn = func(string, ...any) { warned++ }

	res := RunLogin(context.Background(), "grower@example.com", "secret-pass", "", deps)
	if res.Failure != LoginFailureNone {
		t.Fatalf("touch failure must not fail login, got %d %v", res.Failure, res.Err)
	}
	if warned != 1 {
		t.Fatalf("expected one warning, got %d", warned)
	}
	if f.replaced["u1"] != "hash2:secret-pass" {
		t.Fatalf("expected rehash, got %q", f.replaced["u1"])
	}
}

func TestRunLoginRateLimited(t *testing.T) {
	f := newLoginFixture()
	deps := f.deps()
	limited := errors.New("limited")
	deps.CheckLoginRate = func(context.Context, string, string) error { return limited }

	res := RunLogin(context.Background(), "grower@example.com", "secret-pass", "", deps)
	if res.Failure != LoginFailureRateLimited || !errors.Is(res.Err, limited) {
		t.Fatalf("expected rate limited, got %d %v", res.Failure, res.Err)
	}
	if f.verifyCalls != 0 {
		t.Fatal("throttled login must not verify")
	}

	deps.CheckLoginRate = nil
	deps.IncrementLoginRate = func(context.Context, string, string) error { return limited }
	res = RunLogin(context.Background(), "grower@example.com", "wrong-pass", "", deps)
	if res.Failure != LoginFailureRateLimited {
		t.Fatalf("expected exhausted budget to report rate limited, got %d", res.Failure)
	}
}

func TestRunLoginLookupError(t *testing.T) {
	f := newLoginFixture()
	deps := f.deps()
	deps.FindAccountByEmail = func(context.Context, string) (stores.Account, error) {
		return stores.Account{}, errors.New("backend down")
	}

	res := RunLogin(context.Background(), "grower@example.com", "secret-pass", "", deps)
	if res.Failure != LoginFailureLookup {
		t.Fatalf("expected lookup failure, got %d", res.Failure)
	}
}

type rotateFixture struct {
	records   map[string]refresh.Record
	accounts  map[string]stores.Account
	revokeWon bool
	revoked   []string
	loaded    int
	issued    []string
}

func newRotateFixture(rec refresh.Record) *rotateFixture {
	return &rotateFixture{
		records:   map[string]refresh.Record{"raw": rec},
		accounts:  map[string]stores.Account{"u1": {ID: "u1", Role: "admin", Active: true}},
		revokeWon: true,
	}
}

func (f *rotateFixture) deps(now time.Time) RotateDeps {
	return RotateDeps{
		Now: func() time.Time { return now },
		FindByRaw: func(_ context.Context, raw string) (refresh.Record, bool, error) {
			rec, ok := f.records[raw]
			return rec, ok, nil
		},
		RevokeIfActive: func(_ context.Context, id string, _ time.Time) (bool, error) {
			f.revoked = append(f.revoked, id)
			return f.revokeWon, nil
		},
		LoadAccount: func(_ context.Context, id string) (stores.Account, error) {
			f.loaded++
			acc, ok := f.accounts[id]
			if !ok {
				return stores.Account{}, stores.ErrAccountNotFound
			}
			return acc, nil
		},
		Issue: func(_ context.Context, acc stores.Account, device string, _ time.Time) (Pair, error) {
			f.issued = append(f.issued, acc.Role+"@"+device)
			return Pair{AccessToken: "a", RefreshToken: "r"}, nil
		},
	}
}

func activeRecord() refresh.Record {
	return refresh.Record{ID: "r1", UserID: "u1", Device: "old-device", ExpiresAt: flowNow.Add(time.Hour)}
}

func TestRunRotateSuccessUsesReloadedRole(t *testing.T) {
	f := newRotateFixture(activeRecord())
	res := RunRotate(context.Background(), "raw", "", f.deps(flowNow))

	if res.Failure != RotateFailureNone {
		t.Fatalf("expected success, got %d %v", res.Failure, res.Err)
	}
	if res.Role != "admin" || res.Device != "old-device" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.issued) != 1 || f.issued[0] != "admin@old-device" {
		t.Fatalf("unexpected issuance: %v", f.issued)
	}

	f2 := newRotateFixture(activeRecord())
	res = RunRotate(context.Background(), "raw", " new-device ", f2.deps(flowNow))
	if res.Device != "new-device" {
		t.Fatalf("expected request device to win, got %q", res.Device)
	}
}

func TestRunRotateFailureOrder(t *testing.T) {
	revoked := activeRecord()
	revoked.RevokedAt = flowNow.Add(-time.Minute)

	noExpiry := activeRecord()
	noExpiry.ExpiresAt = time.Time{}

	expiredRevoked := revoked
	expiredRevoked.ExpiresAt = flowNow.Add(-time.Hour)

	cases := []struct {
		name       string
		rec        refresh.Record
		raw        string
		now        time.Time
		want       RotateFailureKind
		wantRevoke bool
	}{
		{name: "unknown", rec: activeRecord(), raw: "other", now: flowNow, want: RotateFailureUnknown},
		{name: "revoked", rec: revoked, raw: "raw", now: flowNow, want: RotateFailureReuse},
		{name: "revoked beats expired", rec: expiredRevoked, raw: "raw", now: flowNow, want: RotateFailureReuse},
		{name: "missing expiry", rec: noExpiry, raw: "raw", now: flowNow, want: RotateFailureMissingExpiry},
		{name: "expired", rec: activeRecord(), raw: "raw", now: flowNow.Add(time.Hour + time.Second), want: RotateFailureExpired},
		{name: "at expiry instant", rec: activeRecord(), raw: "raw", now: flowNow.Add(time.Hour), want: RotateFailureNone, wantRevoke: true},
	}

	for _, tc := range cases {
		f := newRotateFixture(tc.rec)
		res := RunRotate(context.Background(), tc.raw, "", f.deps(tc.now))
		if res.Failure != tc.want {
			t.Fatalf("%s: expected kind %d, got %d (%v)", tc.name, tc.want, res.Failure, res.Err)
		}
		if got := len(f.revoked) > 0; got != tc.wantRevoke {
			t.Fatalf("%s: revoke attempted=%v", tc.name, got)
		}
	}
}

func TestRunRotateLostRaceIssuesNothing(t *testing.T) {
	f := newRotateFixture(activeRecord())
	f.revokeWon = false

	res := RunRotate(context.Background(), "raw", "", f.deps(flowNow))
	if res.Failure != RotateFailureLostRace {
		t.Fatalf("expected lost race, got %d", res.Failure)
	}
	if f.loaded != 0 || len(f.issued) != 0 {
		t.Fatal("a losing rotation must not load the account or issue tokens")
	}
}

func TestRunRotateAccountChecksAfterRevoke(t *testing.T) {
	f := newRotateFixture(activeRecord())
	f.accounts["u1"] = stores.Account{ID: "u1", Role: "user", Active: false}

	res := RunRotate(context.Background(), "raw", "", f.deps(flowNow))
	if res.Failure != RotateFailureAccountDisabled {
		t.Fatalf("expected disabled, got %d", res.Failure)
	}
	if len(f.revoked) != 1 || len(f.issued) != 0 {
		t.Fatalf("expected revoke without issuance, revoked=%v issued=%v", f.revoked, f.issued)
	}

	f = newRotateFixture(activeRecord())
	delete(f.accounts, "u1")
	res = RunRotate(context.Background(), "raw", "", f.deps(flowNow))
	if res.Failure != RotateFailureAccountMissing {
		t.Fatalf("expected missing account, got %d", res.Failure)
	}
}

func TestRunLogout(t *testing.T) {
	var revoked []string
	deps := LogoutDeps{
		Now: func() time.Time { return flowNow },
		FindByRaw: func(_ context.Context, raw string) (refresh.Record, bool, error) {
			if raw != "raw" {
				return refresh.Record{}, false, nil
			}
			return activeRecord(), true, nil
		},
		Revoke: func(_ context.Context, id string, _ time.Time) error {
			revoked = append(revoked, id)
			return nil
		},
	}

	if res := RunLogout(context.Background(), "raw", deps); res.Failure != LogoutFailureNone || res.UserID != "u1" {
		t.Fatalf("unexpected logout result: %+v", res)
	}
	if res := RunLogout(context.Background(), "other", deps); res.Failure != LogoutFailureUnknown {
		t.Fatalf("expected unknown, got %d", res.Failure)
	}
	if len(revoked) != 1 || revoked[0] != "r1" {
		t.Fatalf("unexpected revocations: %v", revoked)
	}
}
