// Package rest exposes the Flock services over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/interfaces/http/rest/handlers"
	"flock-backend/internal/interfaces/http/rest/middleware"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Router creates and configures the HTTP router
type Router struct {
	Prayers *handlers.PrayerHandler
	Search  *handlers.SearchHandler
	Links   *handlers.LinkHandler
	Topics  *handlers.TopicHandler

	Auth           middleware.AuthConfig
	AllowedOrigins []string
	Metrics        *observability.Collector
	Ready          ReadinessCheck
	Errors         *apperrors.ErrorHandler
	Logger         *zap.Logger
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.Logger))
	if rt.Metrics != nil {
		router.Use(middleware.Metrics(rt.Metrics))
	}
	if len(rt.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID",
				handlers.HeaderSessionID, handlers.HeaderGeneration},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.Auth, rt.Errors, rt.Logger))

		r.Post("/similar-prayers", rt.Search.SimilarPrayers)

		r.Route("/prayers", func(r chi.Router) {
			r.Post("/", rt.Prayers.Submit)
			r.Get("/", rt.Prayers.List)
			r.Get("/{prayerID}", rt.Prayers.Get)
			r.Delete("/{prayerID}", rt.Prayers.Delete)
			r.Post("/{prayerID}/suggestions", rt.Search.DraftSuggestions)
			r.Post("/{prayerID}/link", rt.Links.Link)
			r.Delete("/{prayerID}/vector", rt.Links.RemoveVector)
		})

		r.Delete("/sessions/{sessionID}", rt.Search.AbandonSession)

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", rt.Topics.List)
			r.Get("/{topicID}", rt.Topics.Get)
		})

		r.Post("/maintenance/heal", rt.Links.Heal)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if rt.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.Ready(ctx); err != nil {
			rt.Logger.Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
