package greenauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when the account exists but is_active is false.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken covers every malformed, forged, unknown or expired access token,
	// and unknown or structurally unusable refresh tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when a revoked refresh token is presented again.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired is returned for a refresh token past its expires_at.
	ErrTokenExpired = errors.New("token expired")
	// ErrAccountNotFound is returned when a token or request names an account that no longer exists.
	ErrAccountNotFound = errors.New("account not found")
	// ErrConfiguration is returned for a missing or weak secret and other unusable settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrStoreUnavailable wraps document store and limiter backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrLoginRateLimited is returned while an email or client IP is throttled.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrAccountExists is returned when the username or email is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidAccount is returned for a create request missing a username or a usable email.
	ErrInvalidAccount = errors.New("invalid account request")
	// ErrInvalidRole is returned for a role other than admin or user.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrSelfDeactivation is returned when an admin tries to deactivate their own account.
	ErrSelfDeactivation = errors.New("cannot deactivate own account")
	// ErrPasswordPolicy is returned when a new password is too short or too long.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrForbidden is returned when an authenticated principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// ErrorKind is a closed classification of engine errors. Callers switch on
// KindOf(err) instead of comparing message text.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidCredentials
	KindAccountDisabled
	KindInvalidToken
	KindTokenRevoked
	KindTokenExpired
	KindAccountNotFound
	KindConfiguration
	KindStoreUnavailable
	KindRateLimited
	KindAccountExists
	KindInvalidAccount
	KindInvalidRole
	KindSelfDeactivation
	KindPasswordPolicy
	KindForbidden
	// KindInternal is any error not produced by this package.
	KindInternal
)

var kindNames = [...]string{
	KindNone:               "none",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDisabled:    "account_disabled",
	KindInvalidToken:       "invalid_token",
	KindTokenRevoked:       "token_revoked",
	KindTokenExpired:       "token_expired",
	KindAccountNotFound:    "account_not_found",
	KindConfiguration:      "configuration",
	KindStoreUnavailable:   "store_unavailable",
	KindRateLimited:        "rate_limited",
	KindAccountExists:      "account_exists",
	KindInvalidAccount:     "invalid_account",
	KindInvalidRole:        "invalid_role",
	KindSelfDeactivation:   "self_deactivation",
	KindPasswordPolicy:     "password_policy",
	KindForbidden:          "forbidden",
	KindInternal:           "internal",
}

// String returns the snake_case name used in API error codes.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindAccountDisabled, ErrAccountDisabled},
	{KindInvalidToken, ErrInvalidToken},
	{KindTokenRevoked, ErrTokenRevoked},
	{KindTokenExpired, ErrTokenExpired},
	{KindAccountNotFound, ErrAccountNotFound},
	{KindConfiguration, ErrConfiguration},
	{KindStoreUnavailable, ErrStoreUnavailable},
	{KindRateLimited, ErrLoginRateLimited},
	{KindAccountExists, ErrAccountExists},
	{KindInvalidAccount, ErrInvalidAccount},
	{KindInvalidRole, ErrInvalidRole},
	{KindSelfDeactivation, ErrSelfDeactivation},
	{KindPasswordPolicy, ErrPasswordPolicy},
	{KindForbidden, ErrForbidden},
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

func storeError(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, msg)
}
