// Package api implements the HTTP API server.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hostfolio/guesty-sync-backend/internal/api/handlers"
	"github.com/hostfolio/guesty-sync-backend/internal/api/middleware"
	"github.com/hostfolio/guesty-sync-backend/internal/application/service"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config      Config
	router      chi.Router
	httpServer  *http.Server
	logger      *slog.Logger
	repo        storage.Repository
	syncService *service.SyncService
}

// NewServer creates a new API server.
// If syncService is nil, sync endpoints will not be available.
func NewServer(cfg Config, repo storage.Repository, syncService *service.SyncService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		router:      chi.NewRouter(),
		logger:      logger,
		repo:        repo,
		syncService: syncService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Bookings
		bookingsHandler := handlers.NewBookingsHandler(s.repo)
		r.Get("/bookings", bookingsHandler.List)
		r.Get("/bookings/{id}", bookingsHandler.Get)

		// Listing registry
		listingsHandler := handlers.NewListingsHandler(s.repo)
		r.Get("/listings", listingsHandler.List)
		r.Post("/listings", listingsHandler.Upsert)

		// Sync runs (historical)
		runsHandler := handlers.NewRunsHandler(s.repo)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)

		// Provider health and rate-limit telemetry
		integrationHandler := handlers.NewIntegrationHandler(s.repo)
		r.Get("/integration/health", integrationHandler.GetHealth)
		r.Get("/integration/usage", integrationHandler.GetUsage)

		// Sync operations (live sync jobs)
		if s.syncService != nil {
			syncHandler := handlers.NewSyncHandler(s.syncService)
			r.Post("/sync", syncHandler.StartSync)
			r.Post("/sync/run", syncHandler.RunSync)
			r.Get("/sync", syncHandler.ListAllSyncs)
			r.Get("/sync/active", syncHandler.ListActiveSyncs)
			r.Get("/sync/{jobId}", syncHandler.GetSyncStatus)
			r.Delete("/sync/{jobId}", syncHandler.CancelSync)
		}
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // synchronous sync runs can be slow
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
