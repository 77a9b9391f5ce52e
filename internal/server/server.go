// Package server provides the HTTP server and routing for bondflow.
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

	"github.com/dkastanis/bondflow/internal/config"
	"github.com/dkastanis/bondflow/internal/modules/analytics"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
	"github.com/dkastanis/bondflow/internal/modules/simulation"
	"github.com/dkastanis/bondflow/internal/modules/snapshots"
	"github.com/dkastanis/bondflow/internal/modules/universe"
	"github.com/dkastanis/bondflow/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Config       *config.Config
	Port         int
	DevMode      bool
	Holdings     *portfolio.HoldingRepository
	Securities   *universe.SecurityRepository
	Offerings    *universe.OfferingRepository
	Projector    *cashflows.Projector
	Analytics    *analytics.Service
	Aggregator   *portfolio.Aggregator
	Simulator    *simulation.Simulator
	Snapshots    *snapshots.Repository
	SnapshotJob  scheduler.Job
	Scheduler    *scheduler.Scheduler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	handlers := NewHandlers(HandlerDeps{
		Log:        cfg.Log,
		Holdings:   cfg.Holdings,
		Securities: cfg.Securities,
		Offerings:  cfg.Offerings,
		Projector:  cfg.Projector,
		Analytics:  cfg.Analytics,
		Aggregator: cfg.Aggregator,
		Simulator:  cfg.Simulator,
		Snapshots:  cfg.Snapshots,
	})

	systemHandlers := NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Scheduler, cfg.SnapshotJob)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		handlers:       handlers,
		systemHandlers: systemHandlers,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (plain liveness probe)
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/holdings/{holdingID}", func(r chi.Router) {
			r.Get("/cashflows", s.handlers.HandleHoldingCashflows)
			r.Get("/analytics", s.handlers.HandleHoldingAnalytics)
		})

		r.Route("/portfolio/{customerID}", func(r chi.Router) {
			r.Get("/metrics", s.handlers.HandlePortfolioMetrics)
			r.Get("/cashflows", s.handlers.HandlePortfolioCashflows)
			r.Get("/snapshot", s.handlers.HandleLatestSnapshot)
			r.Post("/swap-simulation", s.handlers.HandleSwapSimulation)
		})

		r.Route("/securities", func(r chi.Router) {
			r.Get("/", s.handlers.HandleListSecurities)
			r.Get("/{cusip}", s.handlers.HandleGetSecurity)
		})

		r.Get("/offerings", s.handlers.HandleListOfferings)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Post("/jobs/snapshot", s.systemHandlers.HandleTriggerSnapshot)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
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
