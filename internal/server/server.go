package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nexusx/nexus/internal/domain"
	"github.com/nexusx/nexus/internal/server/handler"
	"github.com/nexusx/nexus/internal/server/middleware"
	"github.com/nexusx/nexus/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, the admin API is open

	// Limiter enables per-IP rate limiting when set and RateLimit > 0.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration

	// Tokens and Sessions resolve the ledger account of each request.
	Tokens   middleware.TokenVerifier
	Sessions middleware.ActiveSession
	// ActiveFallback lets requests without a session token act as the
	// process-wide active identity. Off, they use the demo ledger.
	ActiveFallback bool

	// Dedup rejects replayed Idempotency-Key headers on trade submission.
	Dedup *middleware.Dedup
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Markets  *handler.MarketHandler
	Trades   *handler.TradeHandler
	Sessions *handler.SessionHandler
	Insights *handler.InsightHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API of the exchange.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, session resolution,
// admin auth) and attaches the WebSocket hub when one is given.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/orderbook", h.Markets.GetOrderBook)
	mux.HandleFunc("GET /api/markets/{id}/chart", h.Markets.GetChart)

	mux.Handle("POST /api/trades", middleware.Idempotent(cfg.Dedup)(http.HandlerFunc(h.Trades.PlaceTrade)))
	mux.HandleFunc("GET /api/wallet", h.Trades.GetWallet)
	mux.HandleFunc("GET /api/orders", h.Trades.ListOrders)

	mux.HandleFunc("POST /api/session/register", h.Sessions.Register)
	mux.HandleFunc("POST /api/session/login", h.Sessions.Login)
	mux.HandleFunc("POST /api/session/logout", h.Sessions.Logout)
	mux.HandleFunc("GET /api/session", h.Sessions.Current)

	mux.HandleFunc("GET /api/insights/strategy", h.Insights.Strategy)
	mux.HandleFunc("GET /api/insights/{id}", h.Insights.Analyze)

	admin := middleware.AdminAuth(cfg.AdminAPIKey)
	mux.Handle("GET /api/admin/stats", admin(http.HandlerFunc(h.Admin.Stats)))
	mux.Handle("PUT /api/admin/markets/{id}/price", admin(http.HandlerFunc(h.Admin.OverridePrice)))
	mux.Handle("POST /api/admin/markets", admin(http.HandlerFunc(h.Admin.AddListing)))
	mux.Handle("GET /api/admin/trades", admin(http.HandlerFunc(h.Admin.Trades)))
	mux.Handle("POST /api/admin/archive", admin(http.HandlerFunc(h.Admin.Archive)))
	mux.Handle("GET /api/admin/archives", admin(http.HandlerFunc(h.Admin.Archives)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(h.Admin.Audit)))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: CORS, logging, rate limit, session.
	var chain http.Handler = mux
	var active middleware.ActiveSession
	if cfg.ActiveFallback {
		active = cfg.Sessions
	}
	chain = middleware.Session(cfg.Tokens, active)(chain)
	chain = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(chain)
	chain = middleware.Logging(logger)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    chain,
		logger:     logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
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
