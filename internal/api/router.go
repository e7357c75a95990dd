package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe tuning.
const (
	readinessTimeout  = 2 * time.Second
	maxGoroutineCount = 10000
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.middleware)
	}

	health := s.healthHandler()
	r.Handle("/live", health)
	r.Handle("/ready", health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{name}", s.handleGetDevice)
		})

		r.Route("/transitions", func(r chi.Router) {
			r.Get("/", s.handleListTransitions)
			r.Post("/", s.handleCreateTransition)
			r.Get("/{id}", s.handleGetTransition)
		})

		r.Route("/dvfs", func(r chi.Router) {
			r.Get("/", s.handleGetDVFS)
			r.Get("/history", s.handleDVFSHistory)
			r.Put("/control", s.handleSetDVFSControl)
			r.Put("/voltages", s.handleSetDVFSVoltages)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// healthHandler serves /live and /ready. Readiness covers the database and
// the MQTT connection when they are configured.
func (s *Server) healthHandler() healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutineCount))

	if s.db != nil {
		health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(s.db.DB, readinessTimeout))
	}
	if s.mqtt != nil {
		health.AddReadinessCheck("mqtt", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer cancel()
			return s.mqtt.HealthCheck(ctx)
		})
	}
	return health
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"version":    s.version,
		"busy":       s.manager.Busy(),
		"async":      s.manager.AsyncEnabled(),
		"devices":    s.manager.Registry().Len(),
		"ws_clients": s.hub.ClientCount(),
	}
	if s.mqtt != nil {
		body["mqtt"] = s.mqtt.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}
