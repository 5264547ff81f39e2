package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all authentication routes with the Chi router
// Public routes: /register, /login, /forgot, /reset-password (throttled)
// Protected routes: /change-password, /me
func RegisterRoutes(r chi.Router, handler *AuthHandler, authMiddleware, throttle Middleware) {
	r.Route("/auth", func(r chi.Router) {
		// Public routes (no authentication required)
		r.Group(func(r chi.Router) {
			if throttle != nil {
				r.Use(throttle)
			}
			r.Post("/register", handler.Register)
			r.Post("/login", handler.Login)
			r.Post("/forgot", handler.ForgotPassword)
			r.Post("/reset-password", handler.ResetPassword)
		})

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/change-password", handler.ChangePassword)
			r.Get("/me", handler.GetMe)
		})
	})
}
