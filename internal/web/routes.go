package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-registry/internal/web/handlers"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Registry, s.log)
	compareHandler := handlers.NewCompareHandler(s.deps.Registry, s.deps.Tokens, s.deps.Metrics, s.log)
	authHandler := handlers.NewAuthHandler(s.deps.Tokens, s.deps.Metrics, s.log)
	historyHandler := handlers.NewHistoryHandler(s.deps.Recorder, s.log)
	imagesHandler := handlers.NewImagesHandler(s.deps.Images, s.log)

	// Health check and metrics (no auth required)
	s.router.Get("/health", handlers.HealthCheck)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Public routes
	s.router.Post("/subirUsuario", identitiesHandler.Create)
	s.router.Post("/compararCara", compareHandler.Compare)
	s.router.Post("/login", authHandler.Login)
	if s.deps.Config.Server.DevTokenEndpoint {
		s.router.Get("/generarToken", authHandler.GenerateToken)
	}

	// All other routes require a session token
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(s.deps.Tokens, s.log))

		// Identities
		r.Get("/usuarios", identitiesHandler.List)
		r.Get("/usuarios/{id}", identitiesHandler.Get)
		r.Put("/usuarios/{id}", identitiesHandler.Update)
		r.Delete("/usuarios/{id}", identitiesHandler.Delete)

		// Images
		r.Get("/imagenes/*", imagesHandler.Serve)

		// History
		r.Get("/historial", historyHandler.List)

		r.Post("/logout", authHandler.Logout)
	})
}
