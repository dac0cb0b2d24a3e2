package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegroup/internal/web/handlers"
	"github.com/kozaktomas/facegroup/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	detectionsHandler := handlers.NewDetectionsHandler(s.clusters, s.index)
	clustersHandler := handlers.NewClustersHandler(s.clusters)
	mediaHandler := handlers.NewMediaHandler(s.store, s.processor)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Detections
		r.Post("/detections", detectionsHandler.Create)
		r.Get("/detections/{id}", detectionsHandler.Get)
		r.Post("/detections/similar", detectionsHandler.Similar)
		r.Delete("/detections/{id}/cluster", clustersHandler.RemoveDetection)

		// Clusters
		r.Get("/clusters", clustersHandler.List)
		r.Get("/clusters/{id}", clustersHandler.Get)
		r.Post("/clusters/{id}/label", clustersHandler.Label)
		r.Post("/clusters/{id}/detections/{detectionId}", clustersHandler.AddDetection)

		// Media
		r.Post("/media", mediaHandler.Create)
		r.Get("/media/{id}", mediaHandler.Get)
		r.Post("/media/{id}/process", mediaHandler.Process)
	})
}
