package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/modelgrid/provider-router/app"
	"github.com/modelgrid/provider-router/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	completionHandler := handlers.NewCompletionHandler(deps.Router, deps.Logger)
	routerHandler := handlers.NewRouterHandler(deps.Router, deps.Logger)
	providerHandler := handlers.NewProviderHandler(deps.Catalog, deps.Oracle, deps.Logger)

	// Health check
	r.Get("/healthz", handlers.HealthCheck)

	// OpenAI-compatible completion surface
	r.Post("/v1/chat/completions", completionHandler.HandleChatCompletion)

	// Operational API
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/router", func(r chi.Router) {
			r.Get("/stats", routerHandler.HandleStats)
			r.Post("/reset", routerHandler.HandleReset)
		})
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerHandler.HandleList)
			r.Put("/{id}/enabled", providerHandler.HandleSetEnabled)
		})
	})

	return r
}
