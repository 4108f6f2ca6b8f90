// Package stores maps account records onto a docstore.Store.
//
// # Design
//
// Accounts are flat documents with unique email and username fields. Email is
// normalized (trimmed, lower-cased) on every write and lookup. Field updates
// go through docstore UpdateIf so password rehashes can be made conditional on
// the digest that was verified.
//
// # Architecture boundaries
//
// This package owns account persistence only. Credential checks, role rules
// and self-deactivation policy belong to the Engine and internal/flows.
//
// # What this package must NOT do
//
//   - Import greenauth or any sibling internal package other than docstore.
//   - Hash or compare passwords.
package stores
