// Package middleware adapts greenauth.Engine.Authenticate to net/http.
//
// # Guards
//
//   - [Guard]: bearer authentication plus an optional role predicate.
//   - [RequireUserOrAdmin]: any enabled admin or user account.
//   - [RequireAdmin]: admin accounts only.
//
// Each guard reads the Authorization header, calls Authenticate, and stores
// the resulting principal in the request context for [PrincipalFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// parse tokens or read the document store itself.
package middleware
