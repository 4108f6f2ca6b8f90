// Package password hashes and verifies account credentials.
//
// New digests are argon2id in PHC string form, so cost parameters travel with
// each stored digest and can be raised without migrating existing rows. Legacy
// bcrypt digests are still accepted by Verify and flagged by NeedsRehash.
//
// # What this package must NOT do
//
//   - Log, store, or return plaintext in errors.
//   - Treat a malformed digest as anything other than a failed verification.
package password
