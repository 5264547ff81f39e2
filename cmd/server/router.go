package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/welldanyogia/account-auth/internal/auth"
	"github.com/welldanyogia/account-auth/internal/health"
	"github.com/welldanyogia/account-auth/internal/metrics"
	authmw "github.com/welldanyogia/account-auth/internal/middleware"
)

// routerDeps is everything the HTTP surface needs from the composition root
type routerDeps struct {
	AuthService    *auth.AuthService
	Limiter        authmw.Limiter
	Health         *health.Handler
	Logger         *slog.Logger
	AllowedOrigins []string
	MetricsEnabled bool
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.StructuredLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if d.MetricsEnabled {
		r.Use(metrics.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", d.Health.Health)
	r.Get("/health/ready", d.Health.Readiness)
	r.Get("/health/live", d.Health.Liveness)
	if d.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	authHandler := auth.NewAuthHandler(d.AuthService, d.Logger)
	authMiddleware := authmw.NewAuthMiddleware(d.AuthService, d.Logger)

	var throttle auth.Middleware
	if d.Limiter != nil {
		throttle = authmw.Throttle(d.Limiter, d.Logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate, throttle)
	})

	return r
}
