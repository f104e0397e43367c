package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jw6ventures/foodlog/internal/config"
	"github.com/jw6ventures/foodlog/internal/http/csrf"
	"github.com/jw6ventures/foodlog/internal/http/ratelimit"
	"github.com/jw6ventures/foodlog/internal/metrics"
	"github.com/jw6ventures/foodlog/internal/ui"
	"github.com/jw6ventures/foodlog/internal/validation"
)

// Multipart uploads carry at most one image plus a few small fields.
const maxBodyBytes = validation.MaxImageSizeBytes + 1<<20

// HealthChecker reports whether the food backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires all HTTP routes.
func NewRouter(cfg *config.Config, health HealthChecker, uiHandler *ui.Handler, authLimiter *ratelimit.IPRateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))
		r.Use(overrideMethod)
		r.Use(uiHandler.LoadWorkspace)

		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Use(csrf.Middleware(cfg))
			r.Get("/login", uiHandler.LoginPage)
			r.Post("/login", uiHandler.Login)
			r.Get("/signup", uiHandler.SignupPage)
			r.Post("/signup", uiHandler.Signup)
			r.Get("/provider/{provider}", uiHandler.Provider)
			r.Get("/callback", uiHandler.Callback)
			r.With(uiHandler.RequireSession).Post("/logout", uiHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(uiHandler.RequireSession)
			r.Use(csrf.Middleware(cfg, csrf.WithTooLargeHandler(http.HandlerFunc(uiHandler.UploadTooLarge))))
			r.Get("/", uiHandler.Dashboard)
			r.Get("/events", uiHandler.Events)

			r.Post("/foods", uiHandler.CreateFood)
			r.Put("/foods/{id}", uiHandler.UpdateFood)
			r.Delete("/foods/{id}", uiHandler.DeleteFood)
			r.Post("/foods/{id}/delete", uiHandler.DeleteFood) // HTML form fallback
		})
	})

	return r
}

// overrideMethod lets HTML forms send PUT and DELETE through a _method query
// parameter. The body is left for the handlers so upload limits apply there.
func overrideMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			switch m := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("_method"))); m {
			case http.MethodPut, http.MethodDelete:
				r.Method = m
			}
		}
		next.ServeHTTP(w, r)
	})
}
