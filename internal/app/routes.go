package app

import (
	"github.com/gorilla/mux"

	"api-gateway/internal/middleware"
	"api-gateway/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the gateway. The admin API
// is mounted under /api; every other request falls through to the
// forwarding layer.
func (a *App) SetupRoutes(router *mux.Router) {
	router.Use(middleware.LoggingMiddleware)

	// Health check
	router.HandleFunc("/health", a.Handlers.HealthCheck).Methods("GET")

	// Admin API, rate limited per caller address
	api := router.PathPrefix("/api").Subrouter()
	if a.RateLimiter != nil {
		api.Use(a.RateLimiter.HTTPMiddleware(ratelimit.IPBasedKey))
	}

	api.HandleFunc("/rules", a.Handlers.GetRules).Methods("GET")
	api.HandleFunc("/rules", a.Handlers.CreateRule).Methods("POST")
	api.HandleFunc("/rules/test", a.Handlers.TestRule).Methods("POST")
	api.HandleFunc("/rules/{id}", a.Handlers.GetRule).Methods("GET")
	api.HandleFunc("/rules/{id}", a.Handlers.UpdateRule).Methods("PUT")
	api.HandleFunc("/rules/{id}", a.Handlers.DeleteRule).Methods("DELETE")

	api.HandleFunc("/stats", a.Handlers.GetStats).Methods("GET")
	api.HandleFunc("/services", a.Handlers.GetServices).Methods("GET")

	// Everything else is proxied according to the routing rules
	router.PathPrefix("/").Handler(a.Forwarder)
}
