// Package logging builds the daemon's slog logger: JSON or text output,
// level filtering, and default service and version attributes.
package logging
