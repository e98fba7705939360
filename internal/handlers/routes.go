package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the HTTP surface
func NewRouter(middleware *Middleware, authHandler *AuthHandler, relationshipHandler *RelationshipHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(Logging)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit).Post("/register", authHandler.Register)
			r.With(middleware.RateLimit).Post("/login", authHandler.Login)
			r.Get("/{provider}/start", authHandler.StartOAuth)
			r.Get("/{provider}/callback", authHandler.OAuthCallback)
		})

		r.Route("/parent-verification", func(r chi.Router) {
			// Public links reached from verification emails
			r.Post("/register-and-verify", relationshipHandler.RegisterAndVerify)
			r.Get("/relationship/{token}", relationshipHandler.GetByToken)
			r.Put("/verify/{token}", relationshipHandler.Verify)
			r.Put("/reject/{token}", relationshipHandler.Reject)
			r.Post("/student-initiated", relationshipHandler.CreateStudentInitiated)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth, middleware.RequireParent)
				r.Post("/request", relationshipHandler.CreateRequest)
				r.Get("/children", relationshipHandler.GetChildren)
				r.Get("/pending", relationshipHandler.GetPending)
				r.Post("/resend-verification/{relationshipId}", relationshipHandler.ResendVerification)
			})
		})
	})

	return r
}
