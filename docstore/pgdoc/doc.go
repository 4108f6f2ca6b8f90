// Package pgdoc implements docstore.Store on PostgreSQL.
//
// All collections share one documents table keyed by (collection, id) with a
// jsonb body. Unique fields are enforced by partial expression indexes created
// from the docstore.Schema at startup; conditional updates are a single
// UPDATE whose WHERE clause carries the conditions, so concurrent callers are
// serialized by the row lock and only one sees its conditions hold.
package pgdoc
