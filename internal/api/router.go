package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siftwatch/sift-be/internal/api/handlers"
	"github.com/siftwatch/sift-be/internal/rules"
	"github.com/siftwatch/sift-be/internal/services"
	"github.com/siftwatch/sift-be/internal/websocket"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(
	hub *websocket.Hub,
	eventService services.EventServiceProvider,
	actionService services.ActionServiceProvider,
	deliveryService services.DeliveryServiceProvider,
	ruleStore *rules.Store,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration for development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // Adjust for your frontend URL
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(eventService, actionService, ruleStore)
	rulesHandler := handlers.NewRulesHandler(ruleStore)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryService)
	healthHandler := handlers.NewHealthHandler()
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Handle("/metrics", promhttp.Handler())

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket stream endpoint for live observers
		r.Get("/ws", wsHandler.Serve)

		r.Post("/events", eventHandler.Ingest)
		r.Get("/intel", eventHandler.GetIntel)

		r.Get("/rules", rulesHandler.Get)
		r.Put("/rules", rulesHandler.Update)

		r.Get("/deliveries", deliveryHandler.Get)

		r.Get("/healthz", healthHandler.Check)
	})

	return r
}
