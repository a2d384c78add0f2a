package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seolwon/ivscreen/internal/api/handlers"
	"github.com/seolwon/ivscreen/pkg/logger"
	"github.com/seolwon/ivscreen/pkg/redis"
)

// RouterOptions carries the optional cross-cutting pieces.
type RouterOptions struct {
	// Limiter rate-limits API calls per client IP; nil disables.
	Limiter *redis.RateLimiter
	// Metrics exposes /metrics when true.
	Metrics bool
}

// NewRouter wires all routes. Routing configuration lives in this
// function and nowhere else.
func NewRouter(runs *handlers.RunHandler, coverage *handlers.CoverageHandler, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs/latest", runs.GetLatest).Methods("GET")
	api.HandleFunc("/runs/{run_id}", runs.GetSummary).Methods("GET")
	api.HandleFunc("/runs/{run_id}/results", runs.GetResults).Methods("GET")
	api.HandleFunc("/runs/{run_id}/selections", runs.GetSelections).Methods("GET")
	api.HandleFunc("/coverage", coverage.List).Methods("GET")
	api.HandleFunc("/coverage/{symbol}", coverage.GetSymbol).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	if opts.Limiter != nil {
		api.Use(rateLimitMiddleware(opts.Limiter, log))
	}

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "ivscreen-api",
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from handler panics.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware rejects clients that exceed the request budget.
func rateLimitMiddleware(limiter *redis.RateLimiter, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), r.RemoteAddr)
			if err != nil {
				log.WithError(err).Warn("Rate limiter unavailable; allowing request")
				ok = true
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
