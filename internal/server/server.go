// Package server exposes the challenge engine over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/handler"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/middleware"
	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client IP; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Challenges *handler.ChallengeHandler
	Trades     *handler.TradeHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the routed handler without binding a listener.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("GET /api/plans", handlers.Challenges.ListPlans)
	mux.HandleFunc("GET /api/leaderboard", handlers.Challenges.Leaderboard)

	mux.HandleFunc("POST /api/users/{userID}/challenges", handlers.Challenges.CreateChallenge)
	mux.HandleFunc("GET /api/users/{userID}/challenges", handlers.Challenges.ListUserChallenges)
	mux.HandleFunc("GET /api/users/{userID}/trades", handlers.Challenges.ListUserTrades)
	mux.HandleFunc("GET /api/users/{userID}/history", handlers.Challenges.ListHistory)

	mux.HandleFunc("GET /api/challenges/{id}", handlers.Challenges.GetChallenge)
	mux.HandleFunc("GET /api/challenges/{id}/events", handlers.Challenges.ListEvents)
	mux.HandleFunc("POST /api/challenges/{id}/trades", handlers.Trades.ExecuteTrade)
	mux.HandleFunc("GET /api/challenges/{id}/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("POST /api/challenges/{id}/complete", handlers.Trades.Complete)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
