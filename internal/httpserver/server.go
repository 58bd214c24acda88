// Package httpserver exposes health, metrics and the postback relay over
// HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/radiusdt/ppbot/internal/config"
	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/radiusdt/ppbot/internal/middleware"
	"go.uber.org/zap"
)

// HealthCheck reports whether a backend is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Relay handles the postback path. Nil disables the relay.
	Relay http.Handler
	// Checks are run by /health, keyed by backend name.
	Checks map[string]HealthCheck
}

// Server serves the HTTP side of the bot.
type Server struct {
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewServer constructs the http.Handler with all routes and middleware.
func NewServer(deps *Dependencies) http.Handler {
	cfg := deps.Config
	s := &Server{checks: deps.Checks, logger: deps.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		mux.Handle(cfg.Metrics.Path, deps.Metrics.Handler())
	}
	if deps.Relay != nil {
		mux.Handle(cfg.Relay.Path, deps.Relay)
	}

	recovery := middleware.NewRecoveryMiddleware(deps.Logger)
	logging := middleware.NewLoggingMiddleware(deps.Logger, "/health", cfg.Metrics.Path)
	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, deps.Logger, deps.Metrics, cfg.Relay.Path)

	return middleware.Chain(mux, recovery.Handler, logging.Handler, limiter.Handler)
}

// New wraps handler in an http.Server with fixed timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("backend", name), zap.Error(err))
			status[name] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
