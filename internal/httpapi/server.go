package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/greenauth"
	"github.com/MrEthical07/greenauth/internal/serverconfig"
	"github.com/MrEthical07/greenauth/metrics/export/prometheus"
	"github.com/MrEthical07/greenauth/middleware"
)

// AuthService is the engine surface the handlers call. *greenauth.Engine
// satisfies it.
type AuthService interface {
	middleware.Authenticator
	prometheus.MetricsSource

	Login(ctx context.Context, email, password, device string) (greenauth.TokenPair, error)
	Rotate(ctx context.Context, rawRefresh, device string) (greenauth.TokenPair, error)
	Logout(ctx context.Context, rawRefresh string) error

	Account(ctx context.Context, id string) (*greenauth.Account, error)
	ListAccounts(ctx context.Context) ([]greenauth.Account, error)
	CreateAccount(ctx context.Context, req greenauth.CreateAccountRequest) (*greenauth.Account, error)
	DeactivateAccount(ctx context.Context, actorID, targetID string) error
	ReactivateAccount(ctx context.Context, actorID, targetID string) error
}

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds what the server needs. Pinger is optional; without it
// /healthz only reports that the process is up.
type Deps struct {
	Config  serverconfig.ServerConfig
	Auth    AuthService
	Pinger  Pinger
	Logger  *slog.Logger
	Version string
}

// Server serves the auth and user management API.
type Server struct {
	cfg     serverconfig.ServerConfig
	auth    AuthService
	pinger  Pinger
	logger  *slog.Logger
	version string
	metrics *prometheus.Exporter
	handler http.Handler
}

// New builds the server and its router. Nothing listens until Run.
func New(deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Config.MaxBodyBytes <= 0 {
		deps.Config.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		cfg:     deps.Config,
		auth:    deps.Auth,
		pinger:  deps.Pinger,
		logger:  deps.Logger,
		version: deps.Version,
		metrics: prometheus.NewExporter(deps.Auth),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MetricsHandler serves the Prometheus text exposition without auth. Run
// mounts it on MetricsAddr when that is set.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Run serves on the configured address, plus MetricsAddr when set, until
// ctx is cancelled, then shuts down within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}}
	if s.cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:         s.cfg.MetricsAddr,
			Handler:      s.MetricsHandler(),
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
			IdleTimeout:  s.cfg.IdleTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			s.logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("http server shutdown: %w", err)
		}
	}
	s.logger.Info("http server stopped")
	return runErr
}
