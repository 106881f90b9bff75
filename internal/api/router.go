// Package api serves the method channel over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caffeineduck/creek/dispatch"
	"github.com/caffeineduck/creek/internal/logger"
	"github.com/caffeineduck/creek/interp"
)

// StateReporter reports the interpreter lifecycle state. *interp.Runtime
// implements it.
type StateReporter interface {
	State() interp.State
	Backend() string
}

// Config wires the router to the rest of the host.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Runtime    StateReporter
	// Channel is the method channel name accepted under /channels/{channel}.
	Channel string
	// Gatherer serves /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

// NewRouter returns the HTTP handler.
//
// Routes:
//   - POST /methods/{method} - invoke a method; the body is the args object
//   - POST /channels/{channel}/methods/{method} - same, for a named channel
//   - GET /methods - method table
//   - PUT /intent - replace the launch component
//   - GET /health - liveness check
//   - GET /health/ready - 200 once the interpreter is ready
//   - GET /metrics - prometheus metrics
//
// No request timeout is applied: a method call runs until the interpreter
// answers.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := newHandler(cfg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.liveness)
		r.Get("/ready", h.readiness)
	})

	r.Get("/methods", h.listMethods)
	r.Post("/methods/{method}", h.invoke)
	r.Post("/channels/{channel}/methods/{method}", h.invoke)
	r.Put("/intent", h.setIntent)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		args := []any{
			logger.KeyRequestID, middleware.GetReqID(r.Context()),
			"http_method", r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, logger.Duration(start),
		}
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			logger.Debug("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	})
}
