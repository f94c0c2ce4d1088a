package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/referral-hub/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Hospitals     *HospitalHandler
	Resources     *ResourceHandler
	Referrals     *ReferralHandler
	Notifications *NotificationHandler
	Audit         *AuditHandler

	JWT       *middleware.JWTAuth
	RateLimit *middleware.RateLimitMiddleware
	Metrics   func(http.Handler) http.Handler // nil skips instrumentation
}

// NewRouter builds the full route tree. Public routes carry only the global
// limiter; everything else goes through JWT auth, and hospital-scoped
// routes additionally require a registered hospital.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	if h.Metrics != nil {
		r.Use(h.Metrics)
	}
	if h.RateLimit != nil {
		r.Use(h.RateLimit.GlobalLimiter)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/auth/signup", h.Auth.Signup)
		// Websocket feed authenticates via query token, outside the JWT
		// middleware chain.
		r.Get("/notifications/feed", h.Notifications.Feed)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/refresh", h.Auth.Refresh)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(h.JWT.Middleware)

			r.Post("/auth/logout", h.Auth.Logout)
			r.Post("/hospitals", h.Hospitals.Register)
			r.Get("/hospitals/me", h.Hospitals.Me)

			// Hospital-scoped
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireHospital)

				r.Get("/hospitals", h.Hospitals.List)
				r.Get("/hospitals/{id}", h.Hospitals.Get)
				r.Get("/hospitals/{id}/resources", h.Resources.GetForHospital)

				r.Get("/resources", h.Resources.GetOwn)
				r.Patch("/resources", h.Resources.SetField)

				r.Post("/referrals", h.Referrals.Create)
				r.Get("/referrals", h.Referrals.List)
				r.Get("/referrals/{id}", h.Referrals.Get)
				r.Post("/referrals/{id}/accept", h.Referrals.Accept)
				r.Post("/referrals/{id}/reject", h.Referrals.Reject)
				r.Post("/referrals/{id}/notifications/read", h.Notifications.MarkReadByReferral)

				r.Get("/notifications", h.Notifications.List)
				r.Get("/notifications/unread-count", h.Notifications.UnreadCount)
				r.Post("/notifications/{id}/read", h.Notifications.MarkRead)

				r.Get("/audit/events", h.Audit.Query)
			})
		})
	})

	return r
}
