package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/server/handler"
	"github.com/alanyoungcy/paperbot/internal/server/middleware"
	"github.com/alanyoungcy/paperbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	RateLimit      int    // requests per window per client IP; 0 disables
	RateLimitBurst int    // window length in seconds
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Profiles *handler.ProfileHandler
	Orders   *handler.OrderHandler
	TPSL     *handler.TPSLHandler
	Archive  *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server for the paper trading
// ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. The limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Profile endpoints.
	mux.HandleFunc("GET /api/profiles", handlers.Profiles.List)
	mux.HandleFunc("POST /api/profiles", handlers.Profiles.Create)
	mux.HandleFunc("PATCH /api/profiles", handlers.Profiles.Update)
	mux.HandleFunc("DELETE /api/profiles", handlers.Profiles.Delete)

	// Order endpoints. The trigger routes are registered before the bare
	// /api/orders patterns; net/http prefers the more specific pattern.
	mux.HandleFunc("POST /api/orders/check-tpsl", handlers.TPSL.Check)
	mux.HandleFunc("GET /api/orders/check-tpsl", handlers.TPSL.Status)
	mux.HandleFunc("GET /api/orders", handlers.Orders.List)
	mux.HandleFunc("POST /api/orders", handlers.Orders.Place)
	mux.HandleFunc("PATCH /api/orders", handlers.Orders.Update)
	mux.HandleFunc("DELETE /api/orders", handlers.Orders.Cancel)

	// Archival endpoints.
	mux.HandleFunc("POST /api/archive", handlers.Archive.Archive)
	mux.HandleFunc("GET /api/archive", handlers.Archive.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply rate limiting when a limiter backend is configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := time.Duration(cfg.RateLimitBurst) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
