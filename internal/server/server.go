package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sdtonline/repricer/internal/server/handler"
	"github.com/sdtonline/repricer/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Runs     *handler.RunHandler
	Events   *handler.EventHandler
	Alerts   *handler.AlertHandler
	Profiles *handler.ProfileHandler
	Settings *handler.SettingHandler
	Prices   *handler.PriceHandler
	TestData *handler.TestDataHandler
}

// Server is the headless HTTP API for the repricer: run triggers, dashboard
// reads, profile and setting management, and test data uploads.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (logging, CORS, auth) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required on the rest of the chain either; the
	// auth middleware wraps everything uniformly).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Run telemetry and triggers.
	mux.HandleFunc("GET /api/runs", handlers.Runs.ListRuns)
	mux.HandleFunc("POST /api/runs/trigger", handlers.Runs.TriggerRun)
	mux.HandleFunc("GET /api/scheduler", handlers.Runs.SchedulerSnapshot)

	// Price event audit trail.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/skus/{id}/events", handlers.Events.ListSkuEvents)

	// Alerts.
	mux.HandleFunc("GET /api/alerts", handlers.Alerts.ListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/ack", handlers.Alerts.AcknowledgeAlert)

	// Repricing profiles.
	mux.HandleFunc("GET /api/profiles", handlers.Profiles.ListProfiles)
	mux.HandleFunc("POST /api/profiles", handlers.Profiles.CreateProfile)
	mux.HandleFunc("GET /api/profiles/{id}", handlers.Profiles.GetProfile)
	mux.HandleFunc("PUT /api/profiles/{id}", handlers.Profiles.UpdateProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", handlers.Profiles.DeleteProfile)

	// System settings.
	mux.HandleFunc("GET /api/settings", handlers.Settings.ListSettings)
	mux.HandleFunc("PUT /api/settings/{key}", handlers.Settings.SetSetting)

	// Manual price actions.
	mux.HandleFunc("POST /api/marketplaces/{marketplace}/skus/{sku}/price", handlers.Prices.SetPrice)
	mux.HandleFunc("POST /api/marketplaces/{marketplace}/feeds", handlers.Prices.SubmitBulkFeed)

	// Test data uploads.
	mux.HandleFunc("POST /api/testdata/{marketplace}/floors", handlers.TestData.UploadFloors)
	mux.HandleFunc("POST /api/testdata/{marketplace}/offers", handlers.TestData.UploadOffers)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
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
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
