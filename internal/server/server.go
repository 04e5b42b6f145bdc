// Package server provides the HTTP server and routing for holdings.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/di"
	ledgerhandlers "github.com/aristath/holdings/internal/modules/ledger/handlers"
	portfoliohandlers "github.com/aristath/holdings/internal/modules/portfolio/handlers"
	tradinghandlers "github.com/aristath/holdings/internal/modules/trading/handlers"
	transfershandlers "github.com/aristath/holdings/internal/modules/transfers/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
	Jobs      *di.JobInstances
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		container:      cfg.Container,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Container, cfg.Jobs),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: the event stream holds its response open
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compression buffers writes and would stall the event stream
	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	c := s.container
	portfolioHandler := portfoliohandlers.NewHandler(c.PortfolioService, s.log)
	tradingHandler := tradinghandlers.NewTradingHandlers(c.TradingService, c.PortfolioService, s.log)
	transfersHandler := transfershandlers.NewHandler(c.TransferService, c.PortfolioService, s.log)
	ledgerHandler := ledgerhandlers.NewHandler(c.PortfolioRepo, c.TradeRepo, c.TransferRepo, s.log)

	s.router.Route("/api", func(r chi.Router) {
		eventsStreamHandler := NewEventsStreamHandler(c.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)
		r.Get("/events/ws", eventsStreamHandler.ServeWebSocket)

		// Every request below gets a deadline; the stream above must not
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			portfolioHandler.RegisterRoutes(r,
				tradingHandler.RegisterRoutes,
				transfersHandler.RegisterRoutes,
				ledgerHandler.RegisterRoutes,
			)

			r.Route("/system", func(r chi.Router) {
				r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
				r.Get("/stats", s.systemHandlers.HandleSystemStats)
				r.Get("/backups", s.systemHandlers.HandleListBackups)
				r.Post("/jobs/{job}", s.systemHandlers.HandleTriggerJob)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
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
