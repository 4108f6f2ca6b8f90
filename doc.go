// Package greenauth is the authentication and session-token core of a
// greenhouse monitoring backend: password login, short-lived HMAC-signed
// access tokens, single-use rotating refresh tokens with reuse detection,
// and the access guard every other endpoint depends on.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// greenauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([TokenPair], [Principal], [Account]). Accounts and refresh
// token records live in a [docstore.Store]; the Redis and Postgres backends
// are in docstore/redisdoc and docstore/pgdoc. Flow ordering, login throttling
// and audit dispatch live under internal/.
//
// # Rotation
//
// A refresh token is accepted once. Rotate revokes the presented record with
// a conditional write before anything new is issued, so of any number of
// concurrent presentations exactly one succeeds and the rest see
// [ErrTokenRevoked].
//
// # What this package must NOT do
//
//   - Persist or log raw refresh tokens or plaintext passwords.
//   - Keep per-session state in memory between calls.
//   - Import any sub-package that re-imports greenauth (no import cycles).
package greenauth
