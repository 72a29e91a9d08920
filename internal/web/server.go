package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/metrics"
	"github.com/kozaktomas/companion/internal/web/handlers"
	"github.com/kozaktomas/companion/internal/web/middleware"
)

// Dependencies are the running components the HTTP surface controls.
type Dependencies struct {
	Detection handlers.DetectionController
	Encounter handlers.SaveController
	Events    *handlers.EventBroadcaster
	Audio     handlers.AudioController
	Reminders handlers.ReminderController
	TaskFeed  handlers.TaskRefresher
	// Detector enables enrollment from uploaded photos; nil disables it.
	Detector camera.FaceDetector
	Version  string
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Dependencies
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = handlers.NewEventBroadcaster()
	}
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
