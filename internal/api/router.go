/**
 * @description
 * This file sets up the HTTP router for the withdrawal-account-service using the
 * `chi` routing library. It defines all the API routes and applies necessary
 * middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 * - The service's internal packages for handlers and middleware.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/withdrawal-account-service/pkg/middleware"
)

// RouterConfig carries the router's collaborators and settings.
type RouterConfig struct {
	Service            WithdrawalAccountService
	Auth               middleware.Authenticator
	CreateLimiter      middleware.Limiter
	CreateLimitPerMin  int
	CORSAllowedOrigins []string
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Clerk-User-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	handler := NewWithdrawalAccountHandler(cfg.Service, cfg.Auth)

	r.Get("/bank-types", handler.ListBankTypes)

	r.Route("/withdrawal-accounts", func(r chi.Router) {
		// Authentication happens inside the handler, after validation.
		r.With(createLimit(cfg)).Post("/", handler.CreateWithdrawalAccount)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(cfg.Auth))

			r.Get("/", handler.ListWithdrawalAccounts)
			r.Get("/{id}", handler.GetWithdrawalAccount)
			r.Put("/{id}/default", handler.SetDefaultWithdrawalAccount)
			r.Delete("/{id}", handler.DeleteWithdrawalAccount)
		})
	})

	return r
}

func createLimit(cfg RouterConfig) func(http.Handler) http.Handler {
	if cfg.CreateLimiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimitMiddleware(cfg.CreateLimiter, "withdrawal_account_create", cfg.CreateLimitPerMin)
}
