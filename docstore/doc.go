// Package docstore defines the document store contract behind accounts and
// refresh tokens: insert, get, single-field lookup, conditional merge update
// and collection scan over flat string documents.
//
// Backends live in sub-packages:
//
//   - redisdoc: Redis hashes with Lua scripts for atomic unique inserts and
//     conditional updates
//   - pgdoc: PostgreSQL jsonb rows with goose migrations and partial unique
//     expression indexes
//
// # What this package must NOT do
//
//   - Interpret field values beyond the time and bool encoding helpers.
//   - Provide multi-document transactions.
package docstore
