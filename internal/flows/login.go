package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/greenauth/internal/stores"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUnknownEmail
	LoginFailureDisabled
	LoginFailurePassword
	LoginFailureLookup
	LoginFailureIssue
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Role    string
	Pair    Pair
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error

	FindAccountByEmail  func(context.Context, string) (stores.Account, error)
	TouchLogin          func(context.Context, string, time.Time) error
	ReplacePasswordHash func(context.Context, string, string, string) (bool, error)

	VerifyPassword func(plaintext, digest string) bool
	// DummyVerify burns one verification when no account matched.
	DummyVerify  func(plaintext string)
	NeedsRehash  func(digest string) bool
	HashPassword func(plaintext string) (string, error)

	Issue IssueFunc
	Warn  func(string, ...any)
}

// RunLogin authenticates email/password and issues a pair.
//
// Order: throttle check, lookup, active check, password check, best-effort
// last_login_at and rehash, issue. A disabled account fails whatever
// password is sent, but the password is still verified so every failure
// costs one hash.
func RunLogin(ctx context.Context, email, password, device string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}

	email = stores.NormalizeEmail(email)
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	// failed records a failed attempt; an exhausted budget turns the failure
	// into a throttle response.
	failed := func(kind LoginFailureKind, err error, acc stores.Account) LoginResult {
		if deps.IncrementLoginRate != nil {
			if rateErr := deps.IncrementLoginRate(ctx, email, ip); rateErr != nil {
				return LoginResult{Failure: LoginFailureRateLimited, Err: rateErr, UserID: acc.ID}
			}
		}
		return LoginResult{Failure: kind, Err: err, UserID: acc.ID}
	}

	acc, err := deps.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrAccountNotFound) {
			deps.DummyVerify(password)
			return failed(LoginFailureUnknownEmail, err, stores.Account{})
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	if !acc.Active {
		deps.VerifyPassword(password, acc.PasswordHash)
		return failed(LoginFailureDisabled, errors.New("account disabled"), acc)
	}

	if !deps.VerifyPassword(password, acc.PasswordHash) {
		return failed(LoginFailurePassword, errors.New("password mismatch"), acc)
	}

	now := deps.Now()

	if deps.TouchLogin != nil {
		if err := deps.TouchLogin(ctx, acc.ID, now); err != nil {
			deps.Warn("greenauth: last_login_at update failed", "user_id", acc.ID, "error", err)
		}
	}

	if deps.NeedsRehash != nil && deps.HashPassword != nil && deps.ReplacePasswordHash != nil &&
		deps.NeedsRehash(acc.PasswordHash) {
		if upgraded, err := deps.HashPassword(password); err == nil {
			if _, err := deps.ReplacePasswordHash(ctx, acc.ID, acc.PasswordHash, upgraded); err != nil {
				deps.Warn("greenauth: password rehash update failed", "user_id", acc.ID, "error", err)
			}
		} else {
			deps.Warn("greenauth: password rehash generation failed", "user_id", acc.ID, "error", err)
		}
	}
	password = ""

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("greenauth: login limiter reset failed", "error", err)
		}
	}

	pair, err := deps.Issue(ctx, acc, device, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: acc.ID}
	}

	return LoginResult{
		Failure: LoginFailureNone,
		UserID:  acc.ID,
		Role:    acc.Role,
		Pair:    pair,
	}
}
