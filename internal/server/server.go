// Package server assembles the HTTP API: public health and node-status
// endpoints, the admin login endpoint, and the JWT-protected admin
// surface for conflicts and replication status.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/authdir/internal/server/handlers"
	"github.com/iudanet/authdir/internal/server/middleware"
)

// Handlers bundles the route handlers the server mounts.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Conflicts   *handlers.ConflictsHandler
	Replication *handlers.ReplicationHandler
	Health      *handlers.HealthHandler
}

// Config tunes the HTTP listener.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTConfig    handlers.JWTConfig
	RateLimit    int           // запросов на ключ за окно
	RateWindow   time.Duration // окно rate limiter
}

// Server is the HTTP front of one directory instance.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router and wraps it in the middleware chain.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = time.Minute
	}

	mux := http.NewServeMux()

	// Публичные endpoints
	mux.HandleFunc("GET /api/v1/health", h.Health.Health)
	mux.HandleFunc("GET /api/v1/replication/node", h.Replication.Node)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)

	// Прием репликации от пиров
	mux.HandleFunc("POST /api/v1/replication/apply", h.Replication.Apply)

	// Admin endpoints за JWT
	auth := middleware.AuthMiddleware(logger, cfg.JWTConfig)
	mux.Handle("GET /api/v1/conflicts", auth(http.HandlerFunc(h.Conflicts.List)))
	mux.Handle("GET /api/v1/conflicts/stats", auth(http.HandlerFunc(h.Conflicts.Stats)))
	mux.Handle("GET /api/v1/conflicts/{id}", auth(http.HandlerFunc(h.Conflicts.Get)))
	mux.Handle("POST /api/v1/conflicts/{id}/resolve", auth(http.HandlerFunc(h.Conflicts.Resolve)))
	mux.Handle("POST /api/v1/conflicts/scan", auth(http.HandlerFunc(h.Conflicts.Scan)))
	mux.Handle("GET /api/v1/replication/status", auth(http.HandlerFunc(h.Replication.Status)))

	// Логин получает собственный жесткий бюджет против перебора паролей
	loginLimit := map[string]middleware.Limit{
		"/api/v1/auth/login": {Requests: 10, Window: time.Minute},
	}

	var handler http.Handler = mux
	handler = middleware.RateLimitMiddleware(
		middleware.Limit{Requests: cfg.RateLimit, Window: cfg.RateWindow},
		loginLimit, logger,
	)(handler)
	handler = middleware.LoggingMiddleware(logger, "/api/v1/health", "/api/v1/replication/node")(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// ListenAndServe blocks serving HTTP until shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
