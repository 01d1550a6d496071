// Package controller contains the HTTP API of the run supervisor daemon.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"runplane/internal/controller/handlers"
	"runplane/internal/controller/middleware"
	"runplane/internal/store"
)

// Options configures the API server.
type Options struct {
	Addr           string
	Supervisor     handlers.RunSupervisor
	History        store.RunHistory // optional
	MetricsHandler http.Handler     // optional, served at /metrics
	Logger         *slog.Logger

	// TokenHash is the SHA-256 digest of the accepted bearer token. Empty disables auth.
	TokenHash      string
	RateLimit      float64
	RateLimitBurst int
}

// Server is the HTTP server for the run API.
type Server struct {
	httpServer *http.Server
}

// New creates a new API server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(opts),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// No WriteTimeout: ?wait=true responses last as long as the run.
		},
	}
}

// NewHandler builds the routed and wrapped handler.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := handlers.New(opts.Supervisor, opts.History, opts.Logger)

	authMW := middleware.RequireToken(opts.TokenHash)
	rateMW := middleware.NewRateLimiter(opts.RateLimit, opts.RateLimitBurst).Middleware()
	protect := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateMW(fn))
	}

	mux := http.NewServeMux()

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	// Runs
	mux.Handle("POST /runs", protect(h.SpawnRun))
	mux.Handle("GET /runs", protect(h.ListRuns))
	mux.Handle("GET /runs/{id}", protect(h.GetRun))
	mux.Handle("POST /runs/{id}/cancel", protect(h.CancelRun))
	mux.Handle("POST /scopes/{key}/cancel", protect(h.CancelScope))

	// History
	mux.Handle("GET /history", protect(h.ListHistory))
	mux.Handle("GET /history/{id}", protect(h.GetHistory))

	return middleware.RequestLogger(opts.Logger)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
