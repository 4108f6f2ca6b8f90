// Package httpapi is the greenhouse backend's authentication HTTP surface:
// login, refresh, logout and profile endpoints, admin account management,
// health and Prometheus metrics.
//
// The server follows a build-then-run lifecycle:
//
//	srv, err := httpapi.New(deps)
//	err = srv.Run(ctx) // returns after ctx is cancelled and in-flight requests finish
package httpapi
