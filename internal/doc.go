// Package internal contains helpers that are private to greenauth, including
// refresh-token generation and hashing and device label normalization.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations, MQTT sink)
//   - flows: ordered login and rotation flows with injected dependencies
//   - httpapi: chi router and JSON handlers for the auth and users routes
//   - logging: slog logger construction
//   - rate: Redis-backed login throttling
//   - serverconfig: YAML server settings with environment overrides
//   - stores: account document mapping over docstore
//
// # What this package must NOT do
//
//   - Export types that appear in the public greenauth API.
//   - Be imported by any package outside the greenauth module.
package internal
