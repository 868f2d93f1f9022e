// Package router arma el árbol de rutas HTTP.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/mercatto/authd/internal/http/controllers/auth"
	emailctrl "github.com/mercatto/authd/internal/http/controllers/email"
	healthctrl "github.com/mercatto/authd/internal/http/controllers/health"
	socialctrl "github.com/mercatto/authd/internal/http/controllers/social"
	mw "github.com/mercatto/authd/internal/http/middlewares"
)

// Deps contiene todas las dependencias del router.
type Deps struct {
	Auth   *authctrl.Controller
	Social *socialctrl.Controller
	Email  *emailctrl.Controller
	Health *healthctrl.Controller

	Guard mw.GuardDeps

	CORSAllowedOrigins []string
	MetricsRegistry    *prometheus.Registry
}

// New construye el router con middlewares y rutas registradas.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithCORS(d.CORSAllowedOrigins),
	)

	r.Get("/healthz", d.Health.Healthz)

	if d.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			d.MetricsRegistry,
			promhttp.HandlerOpts{},
		))
	}

	r.Route("/auth", func(r chi.Router) {
		// Login con credenciales, público.
		r.Post("/{realm}/login", d.Auth.Login)

		// Superficie autenticada por realm. Las rutas estáticas ganan
		// precedencia sobre las de parámetro en chi.
		r.Group(func(r chi.Router) {
			r.Use(d.Guard.RequireAdmin())
			r.Post("/admin/logout", d.Auth.Logout)
			r.Get("/admin/me", d.Auth.Me)
		})
		r.Group(func(r chi.Router) {
			r.Use(d.Guard.RequireCustomer())
			r.Post("/customer/logout", d.Auth.Logout)
			r.Get("/customer/me", d.Auth.Me)
			r.Post("/unlink", d.Social.Unlink)
			r.Post("/email-code", d.Email.SendCode)
			r.Post("/email-verification", d.Email.Verify)
		})

		// Flujo OAuth. El callback acepta GET y POST porque Apple vuelve
		// por form_post.
		r.Get("/{provider}_callback", d.Social.Callback)
		r.Post("/{provider}_callback", d.Social.Callback)
		r.Get("/{provider}/{state}", d.Social.Start)
	})

	return r
}
