package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/greenauth/docstore"
)

// AccountsCollection is the docstore collection holding accounts.
const AccountsCollection = "accounts"

const (
	fieldUsername      = "username"
	fieldEmail         = "email"
	fieldPasswordHash  = "password_hash"
	fieldRole          = "role"
	fieldIsActive      = "is_active"
	fieldCreatedAt     = "created_at"
	fieldLastLoginAt   = "last_login_at"
	fieldDeactivatedAt = "deactivated_at"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is the stored account shape.
type Account struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	Active        bool
	CreatedAt     time.Time
	LastLoginAt   time.Time
	DeactivatedAt time.Time
}

// AccountIndexes declares the unique account fields.
func AccountIndexes() docstore.Indexes {
	return docstore.Indexes{Unique: []string{fieldEmail, fieldUsername}}
}

// NormalizeEmail trims and lower-cases an address. It is applied on every
// write and every lookup so matching is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountStore maps accounts onto a docstore.Store.
type AccountStore struct {
	docs docstore.Store
}

// NewAccountStore maps accounts onto the accounts collection of docs.
func NewAccountStore(docs docstore.Store) *AccountStore {
	return &AccountStore{docs: docs}
}

// Create inserts acc and returns it with its new ID. A clash on username or
// email returns ErrAccountExists.
func (s *AccountStore) Create(ctx context.Context, acc Account) (Account, error) {
	acc.Email = NormalizeEmail(acc.Email)
	acc.Username = strings.TrimSpace(acc.Username)

	id, err := s.docs.Insert(ctx, AccountsCollection, encodeAccount(acc))
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	acc.ID = id
	return acc, nil
}

// ByID loads an account. A missing document is ErrAccountNotFound.
func (s *AccountStore) ByID(ctx context.Context, id string) (Account, error) {
	doc, err := s.docs.Get(ctx, AccountsCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return decodeAccount(doc), nil
}

// ByEmail normalizes email and loads the matching account.
func (s *AccountStore) ByEmail(ctx context.Context, email string) (Account, error) {
	doc, err := s.docs.FindOne(ctx, AccountsCollection, fieldEmail, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return decodeAccount(doc), nil
}

// List returns all accounts in creation order.
func (s *AccountStore) List(ctx context.Context) ([]Account, error) {
	docs, err := s.docs.List(ctx, AccountsCollection)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeAccount(doc))
	}
	return out, nil
}

// TouchLogin records a successful login at now.
func (s *AccountStore) TouchLogin(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, id, nil, docstore.Fields{fieldLastLoginAt: docstore.FormatTime(now)})
}

// ReplacePasswordHash swaps the stored digest only while it still equals
// current, so a concurrent password change is never overwritten. It reports
// whether the swap happened.
func (s *AccountStore) ReplacePasswordHash(ctx context.Context, id, current, next string) (bool, error) {
	applied, err := s.docs.UpdateIf(ctx, AccountsCollection, id,
		[]docstore.Condition{docstore.FieldEquals(fieldPasswordHash, current)},
		docstore.Fields{fieldPasswordHash: next},
	)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, ErrAccountNotFound
	}
	return applied, err
}

// SetActive toggles the account. Deactivation stamps deactivated_at;
// reactivation clears it.
func (s *AccountStore) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	patch := docstore.Fields{fieldIsActive: docstore.FormatBool(active)}
	if active {
		patch[fieldDeactivatedAt] = ""
	} else {
		patch[fieldDeactivatedAt] = docstore.FormatTime(now)
	}
	return s.update(ctx, id, nil, patch)
}

func (s *AccountStore) update(ctx context.Context, id string, conds []docstore.Condition, patch docstore.Fields) error {
	applied, err := s.docs.UpdateIf(ctx, AccountsCollection, id, conds, patch)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if !applied {
		return fmt.Errorf("account %s: update rejected", id)
	}
	return nil
}

func encodeAccount(acc Account) docstore.Fields {
	return docstore.Fields{
		fieldUsername:      acc.Username,
		fieldEmail:         acc.Email,
		fieldPasswordHash:  acc.PasswordHash,
		fieldRole:          acc.Role,
		fieldIsActive:      docstore.FormatBool(acc.Active),
		fieldCreatedAt:     docstore.FormatTime(acc.CreatedAt),
		fieldLastLoginAt:   docstore.FormatTime(acc.LastLoginAt),
		fieldDeactivatedAt: docstore.FormatTime(acc.DeactivatedAt),
	}
}

func decodeAccount(doc docstore.Document) Account {
	f := doc.Fields
	acc := Account{
		ID:           doc.ID,
		Username:     f[fieldUsername],
		Email:        f[fieldEmail],
		PasswordHash: f[fieldPasswordHash],
		Role:         f[fieldRole],
		// Records written before is_active existed count as active.
		Active: f[fieldIsActive] == "" || docstore.ParseBool(f[fieldIsActive]),
	}
	acc.CreatedAt, _, _ = docstore.ParseTime(f[fieldCreatedAt])
	acc.LastLoginAt, _, _ = docstore.ParseTime(f[fieldLastLoginAt])
	acc.DeactivatedAt, _, _ = docstore.ParseTime(f[fieldDeactivatedAt])
	return acc
}
