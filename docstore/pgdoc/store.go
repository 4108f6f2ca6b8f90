package pgdoc

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/greenauth/docstore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Store is a PostgreSQL-backed docstore.Store.
type Store struct {
	db     *sql.DB
	schema docstore.Schema
}

// Open connects with the pgx driver, applies migrations and creates the
// schema's indexes.
func Open(ctx context.Context, dsn string, schema docstore.Schema) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	s, err := New(db, schema)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing connection pool. Collection and field names in schema
// are inlined into SQL and must match [a-z_][a-z0-9_]*.
func New(db *sql.DB, schema docstore.Schema) (*Store, error) {
	for collection, idx := range schema {
		if !identPattern.MatchString(collection) {
			return nil, fmt.Errorf("pgdoc: invalid collection name %q", collection)
		}
		for _, f := range append(append([]string{}, idx.Unique...), idx.Lookup...) {
			if !identPattern.MatchString(f) {
				return nil, fmt.Errorf("pgdoc: invalid field name %q", f)
			}
		}
	}
	return &Store{db: db, schema: schema}, nil
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, "migrations")
}

// EnsureIndexes creates one partial expression index per schema field.
// Unique indexes ignore null values so optional unique fields may repeat empty.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	collections := make([]string, 0, len(s.schema))
	for c := range s.schema {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	for _, c := range collections {
		idx := s.schema[c]
		for _, f := range idx.Unique {
			stmt := fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS documents_%s_%s_uq ON documents ((body->>'%s')) WHERE collection = '%s' AND coalesce(body->>'%s', '') <> ''`,
				c, f, f, c, f,
			)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: create index %s.%s: %v", docstore.ErrUnavailable, c, f, err)
			}
		}
		for _, f := range idx.Lookup {
			stmt := fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS documents_%s_%s_ix ON documents ((body->>'%s')) WHERE collection = '%s'`,
				c, f, f, c,
			)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w: create index %s.%s: %v", docstore.ErrUnavailable, c, f, err)
			}
		}
	}

	return nil
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id, err := docstore.NewID()
	if err != nil {
		return "", err
	}

	body, err := encodeBody(fields)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO documents (collection, id, body)
		VALUES ($1, $2, $3::jsonb)
	`
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(body)); err != nil {
		return "", mapError(err)
	}

	return id, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	query := `
		SELECT body
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, mapError(err)
	}

	fields, err := decodeBody(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

// FindOne implements docstore.Store. Lookup fields resolve to the oldest match.
func (s *Store) FindOne(ctx context.Context, collection, field, value string) (docstore.Document, error) {
	if !s.schema.Indexed(collection, field) {
		return docstore.Document{}, fmt.Errorf("%w: %s.%s", docstore.ErrNotIndexed, collection, field)
	}
	if value == "" {
		return docstore.Document{}, docstore.ErrNotFound
	}

	query := fmt.Sprintf(`
		SELECT id, body
		FROM documents
		WHERE collection = $1 AND body->>'%s' = $2
		ORDER BY id
		LIMIT 1
	`, field)

	var (
		id  string
		raw []byte
	)
	if err := s.db.QueryRowContext(ctx, query, collection, value).Scan(&id, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, mapError(err)
	}

	fields, err := decodeBody(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

// UpdateIf implements docstore.Store. Empty patch values remove the key.
func (s *Store) UpdateIf(
	ctx context.Context,
	collection, id string,
	conds []docstore.Condition,
	patch docstore.Fields,
) (bool, error) {
	set := docstore.Fields{}
	var drop []string
	for _, f := range sortedFields(patch) {
		if !identPattern.MatchString(f) {
			return false, fmt.Errorf("pgdoc: invalid field name %q", f)
		}
		if patch[f] == "" {
			drop = append(drop, f)
			continue
		}
		set[f] = patch[f]
	}

	body, err := encodeBody(set)
	if err != nil {
		return false, err
	}

	var b strings.Builder
	b.WriteString("UPDATE documents SET body = (body || $3::jsonb)")
	for _, f := range drop {
		b.WriteString(" - '" + f + "'")
	}
	b.WriteString(" WHERE collection = $1 AND id = $2")

	args := []interface{}{collection, id, string(body)}
	for _, c := range conds {
		if !identPattern.MatchString(c.Field) {
			return false, fmt.Errorf("pgdoc: invalid field name %q", c.Field)
		}
		if c.Absent {
			b.WriteString(" AND coalesce(body->>'" + c.Field + "', '') = ''")
			continue
		}
		args = append(args, c.Value)
		b.WriteString(" AND body->>'" + c.Field + "' = $" + strconv.Itoa(len(args)))
	}

	res, err := s.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return false, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := s.exists(ctx, collection, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, docstore.ErrNotFound
	}
	return false, nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	query := `
		SELECT id, body
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, mapError(err)
		}
		fields, err := decodeBody(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return docs, nil
}

// Ping checks connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, collection, id string) (bool, error) {
	query := `
		SELECT 1
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var one int
	if err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return docstore.ErrDuplicate
	}
	return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
}

func encodeBody(fields docstore.Fields) ([]byte, error) {
	body := make(map[string]string, len(fields))
	for k, v := range fields {
		if v != "" {
			body[k] = v
		}
	}
	return json.Marshal(body)
}

func decodeBody(raw []byte) (docstore.Fields, error) {
	fields := docstore.Fields{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("pgdoc: corrupt document body: %w", err)
	}
	return fields, nil
}

func sortedFields(fields docstore.Fields) []string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}
