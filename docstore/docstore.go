package docstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document or lookup has no match.
	ErrNotFound = errors.New("docstore: not found")
	// ErrDuplicate is returned when a write would violate a unique field.
	ErrDuplicate = errors.New("docstore: duplicate unique field")
	// ErrUnavailable wraps backend transport and query failures.
	ErrUnavailable = errors.New("docstore: backend unavailable")
	// ErrNotIndexed is returned by FindOne for a field with no declared index.
	ErrNotIndexed = errors.New("docstore: field not indexed")
)

// Fields is a flat document body. Values are strings; an empty value is null.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Document is a stored Fields body with its generated identifier.
type Document struct {
	ID     string
	Fields Fields
}

// Condition guards an UpdateIf. With Absent set the field must be null;
// otherwise it must equal Value.
type Condition struct {
	Field  string
	Value  string
	Absent bool
}

// FieldAbsent builds a Condition requiring field to be null.
func FieldAbsent(field string) Condition {
	return Condition{Field: field, Absent: true}
}

// FieldEquals builds a Condition requiring field to equal value.
func FieldEquals(field, value string) Condition {
	return Condition{Field: field, Value: value}
}

// Schema names the indexed fields of each collection. Unique indexes reject
// duplicate non-empty values; Lookup indexes only serve FindOne.
type Schema map[string]Indexes

// Indexes lists the indexed fields of one collection.
type Indexes struct {
	Unique []string
	Lookup []string
}

// Indexed reports whether field in collection may be passed to FindOne.
func (s Schema) Indexed(collection, field string) bool {
	idx := s[collection]
	for _, f := range idx.Unique {
		if f == field {
			return true
		}
	}
	for _, f := range idx.Lookup {
		if f == field {
			return true
		}
	}
	return false
}

// Store is the document persistence contract used by the auth core.
//
// Implementations must make UpdateIf atomic with respect to concurrent
// UpdateIf calls on the same document: of N racing callers whose conditions
// all hold at the start, exactly one observes applied=true.
type Store interface {
	// Insert stores fields under a new identifier and returns it.
	Insert(ctx context.Context, collection string, fields Fields) (string, error)
	// Get returns the document with id or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// FindOne returns the first document whose field equals value, or ErrNotFound.
	FindOne(ctx context.Context, collection, field, value string) (Document, error)
	// UpdateIf merges patch into the document when every condition holds.
	// It returns ErrNotFound for a missing document and false when a condition fails.
	UpdateIf(ctx context.Context, collection, id string, conds []Condition, patch Fields) (bool, error)
	// List returns every document in collection.
	List(ctx context.Context, collection string) ([]Document, error)
}

// NewID returns a time-ordered document identifier.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FormatTime encodes t as RFC 3339 UTC with nanoseconds. The zero time is null.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime decodes a FormatTime value. Null decodes to the zero time with ok=false.
func ParseTime(v string) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

// FormatBool encodes b as "true" or "false".
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// ParseBool decodes a FormatBool value. Null and unparsable values are false.
func ParseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
