// Package flows contains the ordered orchestration behind Engine.Login,
// Engine.Rotate and Engine.Logout.
//
// Each flow function (RunLogin, RunRotate, RunLogout) accepts a typed
// dependency struct of funcs and returns a result carrying a failure kind.
// The root package maps kinds to public errors, metrics and audit events, so
// flows stay free of those concerns and can be tested with plain fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the account store, refresh store, token
// codec and rate limiter. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import greenauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
