/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     Structured request log through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin GETs for dashboards

ROUTES:
  /                 Greeting
  /api/*            Read-only trial data
  /metrics          Prometheus

SECURITY NOTE:
  No authentication. Every endpoint is read-only.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/trialdb/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/trialdb/logging"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", h.Hello)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.GetSummary)

		r.Get("/projects/{project}/subjects/{subject}", h.GetSubject)

		r.Route("/samples", func(r chi.Router) {
			r.Get("/{id}", h.GetSample)
			r.Get("/{id}/frequencies", h.GetSampleFrequencies)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{}))

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
