package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/greenauth/docstore"
	"github.com/MrEthical07/greenauth/internal"
)

// Collection is the docstore collection holding refresh token records.
const Collection = "refresh_tokens"

// DefaultDevice labels records created without a device.
const DefaultDevice = "unknown"

const (
	fieldUserID    = "user_id"
	fieldTokenHash = "token_hash"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldRevokedAt = "revoked_at"
	fieldDevice    = "device"
)

// ErrNotFound is returned by Revoke and RevokeIfActive for an unknown record id.
var ErrNotFound = errors.New("refresh token record not found")

// Indexes declares the record fields Store looks up by.
func Indexes() docstore.Indexes {
	return docstore.Indexes{
		Unique: []string{fieldTokenHash},
		Lookup: []string{fieldUserID},
	}
}

// Record is the persisted form of one refresh token. The raw token is never
// part of it.
type Record struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	// ExpiresAt is zero when the stored record has no usable expiry.
	ExpiresAt time.Time
	RevokedAt time.Time
	Device    string
}

// Revoked reports whether the record carries a revocation time.
func (r Record) Revoked() bool {
	return !r.RevokedAt.IsZero()
}

// HasExpiry reports whether the record carries an expiry time.
func (r Record) HasExpiry() bool {
	return !r.ExpiresAt.IsZero()
}

// Expired reports whether now is strictly past ExpiresAt. A token presented
// exactly at its expiry instant is still accepted.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store creates, resolves and revokes refresh tokens over a docstore.Store.
//
// Records are written once and then only ever gain a revoked_at; they are
// never deleted or reactivated.
type Store struct {
	docs docstore.Store
	ttl  time.Duration
}

// NewStore returns a Store issuing tokens valid for ttl.
func NewStore(docs docstore.Store, ttl time.Duration) *Store {
	return &Store{docs: docs, ttl: ttl}
}

// TTL returns the refresh-token lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create generates a raw token for userID, persists its hash and returns the
// raw token with the stored record. An empty device is stored as DefaultDevice.
func (s *Store) Create(ctx context.Context, userID, device string, now time.Time) (string, Record, error) {
	raw, err := internal.NewRefreshToken()
	if err != nil {
		return "", Record{}, err
	}

	rec := Record{
		UserID:    userID,
		TokenHash: internal.HashRefreshToken(raw),
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(s.ttl).UTC(),
		Device:    internal.NormalizeDevice(device, DefaultDevice),
	}

	id, err := s.docs.Insert(ctx, Collection, docstore.Fields{
		fieldUserID:    rec.UserID,
		fieldTokenHash: rec.TokenHash,
		fieldCreatedAt: docstore.FormatTime(rec.CreatedAt),
		fieldExpiresAt: docstore.FormatTime(rec.ExpiresAt),
		fieldDevice:    rec.Device,
	})
	if err != nil {
		return "", Record{}, fmt.Errorf("store refresh token: %w", err)
	}
	rec.ID = id

	return raw, rec, nil
}

// FindByRaw hashes raw and looks up the matching record. ok is false when no
// record matches.
func (s *Store) FindByRaw(ctx context.Context, raw string) (Record, bool, error) {
	if raw == "" {
		return Record{}, false, nil
	}

	doc, err := s.docs.FindOne(ctx, Collection, fieldTokenHash, internal.HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}

	return decodeRecord(doc), true, nil
}

// Revoke marks record id revoked at now. Revoking an already revoked record
// is a no-op.
func (s *Store) Revoke(ctx context.Context, id string, now time.Time) error {
	_, err := s.RevokeIfActive(ctx, id, now)
	return err
}

// RevokeIfActive sets revoked_at only when it is still unset, reporting
// whether this call performed the revocation. Of any number of concurrent
// callers on the same record, exactly one observes true.
func (s *Store) RevokeIfActive(ctx context.Context, id string, now time.Time) (bool, error) {
	applied, err := s.docs.UpdateIf(ctx, Collection, id,
		[]docstore.Condition{docstore.FieldAbsent(fieldRevokedAt)},
		docstore.Fields{fieldRevokedAt: docstore.FormatTime(now)},
	)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	return applied, nil
}

func decodeRecord(doc docstore.Document) Record {
	f := doc.Fields
	rec := Record{
		ID:        doc.ID,
		UserID:    f[fieldUserID],
		TokenHash: f[fieldTokenHash],
		Device:    f[fieldDevice],
	}

	rec.CreatedAt, _, _ = docstore.ParseTime(f[fieldCreatedAt])

	// An unparsable expiry is treated as missing so the record is rejected.
	if t, ok, err := docstore.ParseTime(f[fieldExpiresAt]); err == nil && ok {
		rec.ExpiresAt = t
	}

	// An unparsable revocation still counts as revoked.
	if v := f[fieldRevokedAt]; v != "" {
		t, _, err := docstore.ParseTime(v)
		if err != nil || t.IsZero() {
			t = time.Unix(0, 0).UTC()
		}
		rec.RevokedAt = t
	}

	return rec
}
