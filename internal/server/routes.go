package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/observability"
	"github.com/parlorhq/parlor/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	if s.opts.HealthEnabled {
		health := s.opts.Health
		s.router.Get("/health", health.HealthHandler)
		s.router.Get("/health/live", health.LivenessHandler)
		s.router.Get("/health/ready", health.ReadinessHandler)
		s.router.Get("/health/startup", health.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)

	if s.opts.MetricsEndpoint {
		s.router.Get("/metrics", MetricsHandler)
	}

	relay := s.opts.Relay
	if relay == nil {
		relay = &handlers.RelayHandlers{}
	}
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/messages", relay.PostMessage)
		r.Get("/conversations/{userID}", relay.GetConversation)
		r.Delete("/conversations/{userID}", relay.DeleteConversation)
	})

	if s.opts.Profiler {
		s.router.Mount("/debug", middleware.Profiler())
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen signal handling when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
