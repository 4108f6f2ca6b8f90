package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/greenauth/internal/stores"
	"github.com/MrEthical07/greenauth/refresh"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureLookup
	RotateFailureUnknown
	RotateFailureReuse
	RotateFailureMissingExpiry
	RotateFailureExpired
	RotateFailureRevoke
	RotateFailureLostRace
	RotateFailureAccountMissing
	RotateFailureAccountDisabled
	RotateFailureAccountLookup
	RotateFailureIssue
)

// RotateResult carries either the issued pair or failure metadata.
type RotateResult struct {
	Failure  RotateFailureKind
	Err      error
	RecordID string
	UserID   string
	Role     string
	Device   string
	Pair     Pair
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	Now            func() time.Time
	FindByRaw      func(context.Context, string) (refresh.Record, bool, error)
	RevokeIfActive func(context.Context, string, time.Time) (bool, error)
	LoadAccount    func(context.Context, string) (stores.Account, error)
	Issue          IssueFunc
}

// RunRotate exchanges a refresh token for a new pair.
//
// The presented record is revoked with a conditional write before anything
// is issued; a caller that loses that race gets RotateFailureLostRace and no
// tokens. The account is reloaded after the revoke so role changes and
// deactivations take effect on the next rotation.
func RunRotate(ctx context.Context, raw, device string, deps RotateDeps) RotateResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	rec, ok, err := deps.FindByRaw(ctx, raw)
	if err != nil {
		return RotateResult{Failure: RotateFailureLookup, Err: err}
	}
	if !ok {
		return RotateResult{Failure: RotateFailureUnknown, Err: errors.New("unknown refresh token")}
	}

	base := RotateResult{RecordID: rec.ID, UserID: rec.UserID}

	if rec.Revoked() {
		base.Failure, base.Err = RotateFailureReuse, errors.New("refresh token already revoked")
		return base
	}

	if !rec.HasExpiry() {
		base.Failure, base.Err = RotateFailureMissingExpiry, errors.New("refresh token record missing expires_at")
		return base
	}

	now := deps.Now()
	if rec.Expired(now) {
		base.Failure, base.Err = RotateFailureExpired, errors.New("refresh token expired")
		return base
	}

	won, err := deps.RevokeIfActive(ctx, rec.ID, now)
	if err != nil {
		base.Failure, base.Err = RotateFailureRevoke, err
		return base
	}
	if !won {
		base.Failure, base.Err = RotateFailureLostRace, errors.New("refresh token revoked concurrently")
		return base
	}

	acc, err := deps.LoadAccount(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, stores.ErrAccountNotFound) {
			base.Failure, base.Err = RotateFailureAccountMissing, err
			return base
		}
		base.Failure, base.Err = RotateFailureAccountLookup, err
		return base
	}
	if !acc.Active {
		base.Failure, base.Err = RotateFailureAccountDisabled, errors.New("account disabled")
		return base
	}

	device = strings.TrimSpace(device)
	if device == "" {
		device = rec.Device
	}

	pair, err := deps.Issue(ctx, acc, device, now)
	if err != nil {
		base.Failure, base.Err = RotateFailureIssue, err
		return base
	}

	base.Role = acc.Role
	base.Device = device
	base.Pair = pair
	return base
}
