// Package server provides the local HTTP and WebSocket surface of the
// bridge. It binds to loopback only; the bridge is a local sidecar, not a
// network service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/automation"
	"github.com/dongwu-tools/tradebridge/internal/config"
	"github.com/dongwu-tools/tradebridge/internal/exportstore"
	"github.com/dongwu-tools/tradebridge/internal/history"
	"github.com/dongwu-tools/tradebridge/internal/queue"
)

// Deps carries everything the handlers need.
type Deps struct {
	Log     zerolog.Logger
	Config  *config.Config
	Queue   *queue.Manager
	Windows *automation.WindowController
	Scraper *automation.BalanceScraper
	Exports *automation.ExportOrchestrator
	Trader  *automation.TradeExecutor
	Store   *exportstore.Store
	History *history.Store
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	queue     *queue.Manager
	windows   *automation.WindowController
	scraper   *automation.BalanceScraper
	exports   *automation.ExportOrchestrator
	trader    *automation.TradeExecutor
	store     *exportstore.Store
	history   *history.Store
	startedAt time.Time
}

// New creates the HTTP server.
func New(deps Deps) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       deps.Log.With().Str("component", "server").Logger(),
		cfg:       deps.Config,
		queue:     deps.Queue,
		windows:   deps.Windows,
		scraper:   deps.Scraper,
		exports:   deps.Exports,
		trader:    deps.Trader,
		store:     deps.Store,
		history:   deps.History,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    deps.Config.ListenAddr,
		Handler: s.router,
		// No WriteTimeout: automation tasks legitimately take tens of
		// seconds and the WebSocket stays open indefinitely. Task
		// deadlines bound the slow paths instead.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS: browser-based strategy dashboards on the same machine talk to
	// the bridge directly.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/balance", s.handleBalance)
	s.router.Get("/positions", s.handlePositions)
	s.router.Post("/export", s.handleExport)
	s.router.Post("/trade", s.handleTrade)
	s.router.Get("/tasks", s.handleTasks)
	s.router.Get("/ws/local-trading", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
