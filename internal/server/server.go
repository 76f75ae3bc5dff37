// Package server exposes the running simulation over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/server/handler"
	"github.com/alanyoungcy/execsim/internal/server/middleware"
	"github.com/alanyoungcy/execsim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// RateLimit requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration

	// ShutdownTimeout bounds the drain of in-flight requests in Run.
	ShutdownTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Orders     *handler.OrderHandler
	Positions  *handler.PositionHandler
	Books      *handler.BookHandler
	Fills      *handler.FillHandler
	Risk       *handler.RiskHandler
	Simulation *handler.SimulationHandler
	Streams    *handler.StreamHandler // optional
}

// publicPaths skip API key auth.
var publicPaths = []string{"/api/health"}

// Server is the HTTP + WebSocket API of a running simulation.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. Requests pass CORS, logging, rate limiting (when limiter is set and
// cfg.RateLimit > 0) and then auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	routes := map[string]http.HandlerFunc{
		"GET /api/health": handlers.Health.HealthCheck,
		"GET /api/status": handlers.Simulation.GetStatus,

		"GET /api/orders":         handlers.Orders.ListOrders,
		"POST /api/orders":        handlers.Orders.PlaceOrder,
		"GET /api/orders/{id}":    handlers.Orders.GetOrder,
		"DELETE /api/orders/{id}": handlers.Orders.CancelOrder,

		"GET /api/positions":      handlers.Positions.ListPositions,
		"GET /api/books/{symbol}": handlers.Books.GetBook,
		"GET /api/fills":          handlers.Fills.ListFills,
		"GET /api/risk/events":    handlers.Risk.ListEvents,

		"POST /api/simulation/stop": handlers.Simulation.Stop,
	}
	if handlers.Streams != nil {
		routes["GET /api/streams/fills"] = handlers.Streams.ReadFills
	}
	if wsHub != nil {
		routes["GET /ws"] = wsHub.HandleWS
	}

	mux := http.NewServeMux()
	for pattern, fn := range routes {
		mux.HandleFunc(pattern, fn)
	}

	chain := []func(http.Handler) http.Handler{
		middleware.CORS(cfg.CORSOrigins),
		middleware.Logging(logger),
	}
	if limiter != nil && cfg.RateLimit > 0 {
		chain = append(chain, middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger))
	}
	chain = append(chain, middleware.Auth(cfg.APIKey, publicPaths...))

	var h http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to the shutdown timeout. A listen failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server: shutting down", slog.Duration("timeout", s.shutdownTimeout))
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
