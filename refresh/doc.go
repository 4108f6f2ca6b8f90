// Package refresh persists opaque refresh tokens.
//
// # Token format
//
// 48 random bytes, base64url without padding. Only the hex sha256 of the token
// text is stored; presenting the raw token is the only way to resolve a record.
//
// # Architecture boundaries
//
// This package owns record layout, lookup and revocation. Rotation order,
// reuse detection and account checks belong to the Engine and internal/flows.
//
// # What this package must NOT do
//
//   - Log or persist raw tokens.
//   - Delete records or clear revoked_at.
//   - Import greenauth or jwt.
package refresh
