// Package api provides the HTTP surface: the Bot Framework webhook,
// health check, and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/metrics"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Metrics enables the /metrics endpoint and HTTP request metrics.
	Metrics *metrics.Metrics
	// MetricsPath is where the Prometheus handler is mounted.
	MetricsPath string
}

// NewRouter creates the HTTP router. webhook handles POSTed activities;
// connectivity probes GET the same path and get an empty 200.
func NewRouter(webhook http.HandlerFunc, logger zerolog.Logger, config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, config.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", healthCheck)

	if config.Metrics != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, metrics.Handler())
	}

	r.Get("/botframework", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/botframework", webhook)

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
