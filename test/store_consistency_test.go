//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/greenauth/docstore"
)

// The document store contract must hold identically on every backend.
func TestStoreConsistencyConditionalUpdate(t *testing.T) {
	for _, mode := range backendModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			docs := mode.setup(t).docs

			id, err := docs.Insert(ctx, "refresh_tokens", docstore.Fields{
				"token_hash": "h1",
				"user_id":    "u1",
			})
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			applied, err := docs.UpdateIf(ctx, "refresh_tokens", id,
				[]docstore.Condition{docstore.FieldAbsent("revoked_at")},
				docstore.Fields{"revoked_at": "2026-03-01T08:00:00Z"})
			if err != nil || !applied {
				t.Fatalf("first revoke: applied=%v err=%v", applied, err)
			}

			applied, err = docs.UpdateIf(ctx, "refresh_tokens", id,
				[]docstore.Condition{docstore.FieldAbsent("revoked_at")},
				docstore.Fields{"revoked_at": "2026-03-01T09:00:00Z"})
			if err != nil || applied {
				t.Fatalf("second revoke must be rejected: applied=%v err=%v", applied, err)
			}

			doc, err := docs.Get(ctx, "refresh_tokens", id)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if doc.Fields["revoked_at"] != "2026-03-01T08:00:00Z" {
				t.Fatalf("revoked_at changed: %q", doc.Fields["revoked_at"])
			}

			if _, err := docs.UpdateIf(ctx, "refresh_tokens", "missing", nil, docstore.Fields{"x": "y"}); !errors.Is(err, docstore.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreConsistencyUniqueAndLookup(t *testing.T) {
	for _, mode := range backendModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			docs := mode.setup(t).docs

			first, err := docs.Insert(ctx, "accounts", docstore.Fields{"username": "grower", "email": "grower@greenhouse.local"})
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			if _, err := docs.Insert(ctx, "accounts", docstore.Fields{"username": "grower", "email": "other@greenhouse.local"}); !errors.Is(err, docstore.ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}

			doc, err := docs.FindOne(ctx, "accounts", "email", "grower@greenhouse.local")
			if err != nil || doc.ID != first {
				t.Fatalf("find by email: %+v %v", doc, err)
			}
			if _, err := docs.FindOne(ctx, "accounts", "email", "ghost@greenhouse.local"); !errors.Is(err, docstore.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			second, err := docs.Insert(ctx, "accounts", docstore.Fields{"username": "tech", "email": "tech@greenhouse.local"})
			if err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			list, err := docs.List(ctx, "accounts")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(list) != 2 || list[0].ID != first || list[1].ID != second {
				t.Fatalf("unexpected listing %+v", list)
			}
		})
	}
}
