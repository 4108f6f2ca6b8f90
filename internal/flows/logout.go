package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/greenauth/refresh"
)

// LogoutFailureKind classifies why a logout failed.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureLookup
	LogoutFailureUnknown
	LogoutFailureRevoke
)

// LogoutResult is the outcome of RunLogout.
type LogoutResult struct {
	Failure  LogoutFailureKind
	Err      error
	RecordID string
	UserID   string
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now       func() time.Time
	FindByRaw func(context.Context, string) (refresh.Record, bool, error)
	Revoke    func(context.Context, string, time.Time) error
}

// RunLogout revokes the presented refresh token. Logging out an already
// revoked or expired token succeeds.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) LogoutResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	rec, ok, err := deps.FindByRaw(ctx, raw)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureLookup, Err: err}
	}
	if !ok {
		return LogoutResult{Failure: LogoutFailureUnknown, Err: errors.New("unknown refresh token")}
	}

	if err := deps.Revoke(ctx, rec.ID, deps.Now()); err != nil {
		return LogoutResult{Failure: LogoutFailureRevoke, Err: err, RecordID: rec.ID, UserID: rec.UserID}
	}

	return LogoutResult{RecordID: rec.ID, UserID: rec.UserID}
}
