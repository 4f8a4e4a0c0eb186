package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.HandleGetCurrentUser)

		// KPI results
		r.Route("/kpis", func(r chi.Router) {
			r.Get("/devices", s.HandleListEndDeviceKPIs)
			r.Get("/gateways", s.HandleListGatewayKPIs)
		})

		// Monitored gateway working set
		r.Route("/monitored-gateways", func(r chi.Router) {
			r.Get("/", s.HandleListMonitoredGateways)
			r.Post("/", s.HandleAddMonitoredGateway)
			r.Delete("/{gateway_id}", s.HandleRemoveMonitoredGateway)
		})
	})
}
