package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// CredentialRate limits /login, /register, /forgot-password and
	// /reset-password per client IP. Over the limit /forgot-password still
	// answers {"ok": true} but sends nothing.
	CredentialRate string
	Insecure       bool
	Metrics        bool
}

// NewRouter assembles the middleware chain and routes.
func NewRouter(h *Handler, opts RouterOptions) (http.Handler, error) {
	limit, quietLimit, err := newRateLimiter(opts.CredentialRate)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(chimid.Recoverer)
	if opts.Metrics {
		r.Use(observeDuration)
	}
	r.Use(secureHeaders(opts.Insecure))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/reset-password", h.ResetPassword)
	})
	r.With(quietLimit).Post("/forgot-password", h.ForgotPassword)

	r.Post("/logout", h.Logout)
	r.Post("/refresh", h.Refresh)
	r.Get("/me", h.Me)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/password", h.ChangePassword)
		r.Post("/totp/enroll", h.EnrollTotp)
		r.Post("/totp/verify", h.VerifyTotp)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireRole("admin"))
			r.Post("/accounts/{id}/roles", h.GrantRole)
			r.Delete("/accounts/{id}/roles/{role}", h.RevokeRole)
			r.Delete("/accounts/{id}", h.DeleteAccount)
		})
	})

	return r, nil
}
