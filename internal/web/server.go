package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/audit"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/storage"
	"github.com/kozaktomas/face-registry/internal/tokens"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Registry *registry.Registry
	Images   storage.ImageStore
	Tokens   tokens.Store
	Recorder *audit.Recorder
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // served on /metrics, nil disables the endpoint
	Logger   logrus.FieldLogger
}

// Server represents the web server
type Server struct {
	deps       Dependencies
	log        logrus.FieldLogger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(deps Dependencies) *Server {
	r := chi.NewRouter()

	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		deps:   deps,
		log:    log,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Audit(deps.Recorder))
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chiMiddleware.Timeout(constants.RequestTimeout))

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: constants.RequestTimeout + 10*time.Second, // uploads wait on the embedding provider
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and flushes pending audit records
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.Close()
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
