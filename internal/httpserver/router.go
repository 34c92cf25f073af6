package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"promptcache/internal/auth"
	"promptcache/internal/handlers"
	"promptcache/internal/metrics"
	"promptcache/internal/middleware"
	"promptcache/internal/store"
)

// Handlers groups the endpoint handlers the router wires up.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Upload *handlers.UploadHandler
	Query  *handlers.QueryHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, issuer *auth.TokenIssuer, users store.UserStore, h Handlers) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(90 * time.Second)) // covers slow model calls

	// public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(64 * 1024)) // auth payloads are tiny

		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
	})

	// authenticated routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireUser(issuer, users))

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(20 << 20)) // image uploads
			r.Post("/upload-image", h.Upload.Upload)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(512 * 1024))
			r.Post("/structured-query", h.Query.StructuredQuery)
		})
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
