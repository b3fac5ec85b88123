package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router creates and configures the HTTP router. authManager may be nil,
// in which case the key endpoints are open; tracer and metrics may be nil
// when tracing or metrics are disabled.
func Router(handler *Handler, authManager *AuthManager, metrics *Metrics, tracer *Tracer) http.Handler {
	router := mux.NewRouter()

	// Apply global middleware
	router.Use(
		SecurityHeaders,
		CORSMiddleware,
		LoggingMiddleware,
		RecoveryMiddleware,
	)
	if metrics != nil {
		router.Use(MetricsMiddleware(metrics))
	}
	if tracer != nil {
		router.Use(tracer.TracingMiddleware)
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints (no auth required)
	api.HandleFunc("/health", handler.HealthCheckHandler).Methods(http.MethodGet)

	// Read-only endpoints
	readOnly := api.PathPrefix("").Subrouter()
	if authManager != nil {
		readOnly.Use(authManager.AuthMiddleware(RoleRead))
	}
	readOnly.HandleFunc("/keys", handler.ListValues).Methods(http.MethodGet)
	readOnly.HandleFunc("/keys/{key}", handler.GetValue).Methods(http.MethodGet)
	readOnly.HandleFunc("/subscribe/{key}", handler.SubscribeHandler).Methods(http.MethodGet)

	// Write endpoints
	write := api.PathPrefix("").Subrouter()
	if authManager != nil {
		write.Use(authManager.AuthMiddleware(RoleWrite))
	}
	write.HandleFunc("/keys/{key}", handler.SetValue).Methods(http.MethodPut)
	write.HandleFunc("/keys/{key}", handler.DeleteValue).Methods(http.MethodDelete)

	// Prometheus scrape endpoint
	if metrics != nil {
		router.Path("/metrics").Handler(metrics.Handler())
	}

	return router
}
