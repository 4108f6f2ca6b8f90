package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/greenauth/middleware"
)

const healthTimeout = 2 * time.Second

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.clientIPMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsAddr == "" {
		// Without a private listener, metrics are admin-only.
		r.With(middleware.RequireAdmin(s.auth, s.guardError)).
			Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.With(middleware.RequireUserOrAdmin(s.auth, s.guardError)).Get("/me", s.handleMe)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.auth, s.guardError))

			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Put("/{id}/deactivate", s.handleDeactivateUser)
			r.Put("/{id}/reactivate", s.handleReactivateUser)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "unavailable",
				"version": s.version,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
