package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/greenauth/internal/stores"
)

// Pair is an issued access + refresh token pair.
type Pair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	RefreshRecordID string
}

// IssueFunc mints a token pair for acc. The role always comes from acc.
type IssueFunc func(ctx context.Context, acc stores.Account, device string, now time.Time) (Pair, error)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login  LoginDeps
	Rotate RotateDeps
	Logout LogoutDeps
}
