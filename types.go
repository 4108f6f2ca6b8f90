package greenauth

import (
	"strings"
	"time"

	"github.com/MrEthical07/greenauth/internal/stores"
)

// Role is an account role. Only RoleAdmin and RoleUser exist.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole resolves a role name. An empty name selects RoleUser.
func ParseRole(name string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(name))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Account is the public view of a stored account. PasswordHash never
// serializes.
type Account struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	Active        bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	DeactivatedAt *time.Time `json:"deactivated_at"`
}

func accountFromStore(acc stores.Account) Account {
	return Account{
		ID:            acc.ID,
		Username:      acc.Username,
		Email:         acc.Email,
		PasswordHash:  acc.PasswordHash,
		Role:          Role(acc.Role),
		Active:        acc.Active,
		CreatedAt:     acc.CreatedAt,
		LastLoginAt:   optionalTime(acc.LastLoginAt),
		DeactivatedAt: optionalTime(acc.DeactivatedAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CreateAccountRequest carries the fields for CreateAccount. An empty Role
// creates a RoleUser account.
type CreateAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// TokenPair is returned by Login and Rotate.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn       int64     `json:"expires_in"`
	AccessExpiresAt time.Time `json:"-"`
}

// Principal is the authenticated caller behind an access token. Role comes
// from the token claims.
type Principal struct {
	UserID    string
	Username  string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsUserOrAdmin reports whether p may use endpoints open to any enabled account.
func IsUserOrAdmin(p *Principal) bool {
	return p != nil && (p.Role == RoleUser || p.Role == RoleAdmin)
}

// IsAdmin reports whether p may use admin-only endpoints.
func IsAdmin(p *Principal) bool {
	return p != nil && p.Role == RoleAdmin
}
