package greenauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/greenauth/internal"
	"github.com/MrEthical07/greenauth/internal/audit"
	"github.com/MrEthical07/greenauth/internal/flows"
	"github.com/MrEthical07/greenauth/internal/rate"
	"github.com/MrEthical07/greenauth/internal/stores"
	"github.com/MrEthical07/greenauth/jwt"
	"github.com/MrEthical07/greenauth/password"
	"github.com/MrEthical07/greenauth/refresh"
)

// Engine issues, rotates and verifies session tokens.
//
// Engine holds only immutable configuration and handles; all mutable state
// lives in the document store. It is safe for concurrent use.
type Engine struct {
	config      Config
	clock       Clock
	logger      *slog.Logger
	accounts    *stores.AccountStore
	refresh     *refresh.Store
	codec       *jwt.Codec
	hasher      *password.Hasher
	limiter     *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	flows       flows.Deps
	dummyDigest string
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) initFlowDeps() {
	findRefresh := func(ctx context.Context, raw string) (refresh.Record, bool, error) {
		// Anything that could not have come from Create is rejected without
		// a store round-trip.
		if !internal.WellFormedRefreshToken(raw) {
			return refresh.Record{}, false, nil
		}
		return e.refresh.FindByRaw(ctx, raw)
	}

	login := flows.LoginDeps{
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		FindAccountByEmail:  e.accounts.ByEmail,
		TouchLogin:          e.accounts.TouchLogin,
		VerifyPassword:      e.hasher.Verify,
		DummyVerify: func(plaintext string) {
			_ = e.hasher.Verify(plaintext, e.dummyDigest)
		},
		Issue: e.issuePair,
		Warn:  e.logger.Warn,
	}
	if e.config.Password.UpgradeOnLogin {
		login.NeedsRehash = e.hasher.NeedsRehash
		login.HashPassword = e.hasher.Hash
		login.ReplacePasswordHash = e.replacePasswordHash
	}
	if e.limiter.Enabled() {
		login.CheckLoginRate = e.limiter.CheckLogin
		login.IncrementLoginRate = e.limiter.IncrementLogin
		login.ResetLoginRate = e.limiter.ResetLogin
	}

	e.flows = flows.Deps{
		Login: login,
		Rotate: flows.RotateDeps{
			Now:            e.now,
			FindByRaw:      findRefresh,
			RevokeIfActive: e.refresh.RevokeIfActive,
			LoadAccount:    e.accounts.ByID,
			Issue:          e.issuePair,
		},
		Logout: flows.LogoutDeps{
			Now:       e.now,
			FindByRaw: findRefresh,
			Revoke:    e.refresh.Revoke,
		},
	}
}

func (e *Engine) issuePair(ctx context.Context, acc stores.Account, device string, now time.Time) (flows.Pair, error) {
	access, err := e.codec.Issue(acc.ID, acc.Role, now)
	if err != nil {
		return flows.Pair{}, err
	}
	raw, rec, err := e.refresh.Create(ctx, acc.ID, device, now)
	if err != nil {
		return flows.Pair{}, storeError(err)
	}
	return flows.Pair{
		AccessToken:     access,
		RefreshToken:    raw,
		AccessExpiresAt: now.Add(e.codec.AccessTTL()).Truncate(time.Second),
		RefreshRecordID: rec.ID,
	}, nil
}

func (e *Engine) replacePasswordHash(ctx context.Context, id, current, next string) (bool, error) {
	applied, err := e.accounts.ReplacePasswordHash(ctx, id, current, next)
	if err == nil && applied {
		e.metricInc(MetricPasswordRehashed)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordRehashed, success: true, userID: id})
	}
	return applied, err
}

func (e *Engine) tokenPair(p flows.Pair) TokenPair {
	return TokenPair{
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		TokenType:       "bearer",
		ExpiresIn:       int64(e.codec.AccessTTL() / time.Second),
		AccessExpiresAt: p.AccessExpiresAt,
	}
}

func (e *Engine) unavailable(err error) error {
	e.metricInc(MetricStoreUnavailable)
	return storeError(err)
}

// Login authenticates email and password and issues a token pair for device.
//
// An unknown email and a wrong password both return ErrInvalidCredentials.
// A deactivated account returns ErrAccountDisabled whatever password is sent.
// While throttled, Login returns ErrLoginRateLimited.
func (e *Engine) Login(ctx context.Context, email, password, device string) (TokenPair, error) {
	res := flows.RunLogin(ctx, email, password, device, e.flows.Login)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginSuccess,
			success:   true,
			userID:    res.UserID,
			recordID:  res.Pair.RefreshRecordID,
			device:    device,
		})
		return e.tokenPair(res.Pair), nil

	case flows.LoginFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginFailure)
			return TokenPair{}, e.unavailable(res.Err)
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginRateLimited,
			userID:    res.UserID,
			err:       ErrLoginRateLimited,
		})
		return TokenPair{}, ErrLoginRateLimited

	case flows.LoginFailureUnknownEmail, flows.LoginFailurePassword:
		e.metricInc(MetricLoginFailure)
		r := "unknown_email"
		if res.Failure == flows.LoginFailurePassword {
			r = "password_mismatch"
		}
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginFailure,
			userID:    res.UserID,
			err:       ErrInvalidCredentials,
			metadata:  reason(r),
		})
		return TokenPair{}, ErrInvalidCredentials

	case flows.LoginFailureDisabled:
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricLoginDisabledAccount)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginFailure,
			userID:    res.UserID,
			err:       ErrAccountDisabled,
		})
		return TokenPair{}, ErrAccountDisabled

	case flows.LoginFailureLookup:
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, e.unavailable(res.Err)

	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginFailure,
			userID:    res.UserID,
			err:       res.Err,
			metadata:  reason("issue_failed"),
		})
		return TokenPair{}, res.Err
	}
}

// Rotate exchanges a refresh token for a new pair and revokes the presented
// one. A token can be rotated successfully exactly once; every later
// presentation, including a concurrent one that loses the race, returns
// ErrTokenRevoked and is reported as reuse.
func (e *Engine) Rotate(ctx context.Context, rawRefresh, device string) (TokenPair, error) {
	res := flows.RunRotate(ctx, rawRefresh, device, e.flows.Rotate)

	fail := func(err error, r string) (TokenPair, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshInvalid,
			userID:    res.UserID,
			recordID:  res.RecordID,
			err:       err,
			metadata:  reason(r),
		})
		return TokenPair{}, err
	}

	switch res.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshSuccess,
			success:   true,
			userID:    res.UserID,
			recordID:  res.RecordID,
			device:    res.Device,
			metadata: func() map[string]string {
				return map[string]string{"next_record_id": res.Pair.RefreshRecordID}
			},
		})
		return e.tokenPair(res.Pair), nil

	case flows.RotateFailureReuse, flows.RotateFailureLostRace:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		r := "revoked_token_presented"
		if res.Failure == flows.RotateFailureLostRace {
			r = "concurrent_rotation"
		}
		e.logger.Warn("greenauth: refresh token reuse detected",
			"user_id", res.UserID, "record_id", res.RecordID, "reason", r)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshReuseDetected,
			userID:    res.UserID,
			recordID:  res.RecordID,
			err:       ErrTokenRevoked,
			metadata:  reason(r),
		})
		return TokenPair{}, ErrTokenRevoked

	case flows.RotateFailureUnknown:
		return fail(ErrInvalidToken, "unknown_token")
	case flows.RotateFailureMissingExpiry:
		return fail(ErrInvalidToken, "missing_expiry")
	case flows.RotateFailureExpired:
		e.metricInc(MetricRefreshExpired)
		return fail(ErrTokenExpired, "expired")
	case flows.RotateFailureAccountMissing:
		return fail(ErrAccountNotFound, "account_missing")
	case flows.RotateFailureAccountDisabled:
		return fail(ErrAccountDisabled, "account_disabled")
	case flows.RotateFailureRevoke:
		if errors.Is(res.Err, refresh.ErrNotFound) {
			return fail(ErrInvalidToken, "record_vanished")
		}
		return fail(e.unavailable(res.Err), "revoke_failed")
	case flows.RotateFailureLookup, flows.RotateFailureAccountLookup:
		return fail(e.unavailable(res.Err), "lookup_failed")
	default:
		return fail(res.Err, "issue_failed")
	}
}

// Logout revokes the presented refresh token. Logging out an already revoked
// or expired token succeeds; an unknown token returns ErrInvalidToken.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	res := flows.RunLogout(ctx, rawRefresh, e.flows.Logout)

	switch res.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLogout,
			success:   true,
			userID:    res.UserID,
			recordID:  res.RecordID,
		})
		return nil
	case flows.LogoutFailureUnknown:
		return ErrInvalidToken
	case flows.LogoutFailureRevoke:
		if errors.Is(res.Err, refresh.ErrNotFound) {
			return ErrInvalidToken
		}
		return e.unavailable(res.Err)
	default:
		return e.unavailable(res.Err)
	}
}

// Authenticate verifies an access token and confirms the account behind it
// still exists and is active. The returned role is the one in the token.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	claims, err := e.codec.Verify(accessToken, e.now())
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}

	acc, err := e.accounts.ByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, stores.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.unavailable(err)
	}
	if !acc.Active {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrAccountDisabled
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &Principal{
		UserID:    acc.ID,
		Username:  acc.Username,
		Email:     acc.Email,
		Role:      Role(claims.Role),
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}
