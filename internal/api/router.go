package api

import (
	"log/slog"
	"net/http"

	"github.com/example/bank-es/internal/api/middleware"
	"github.com/example/bank-es/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	JWTService   *auth.JWTService
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", cfg.Handlers.Healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", cfg.AuthHandlers.Register)
		r.Post("/login", cfg.AuthHandlers.Login)
		r.Post("/refresh", cfg.AuthHandlers.Refresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTService))

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", cfg.Handlers.CreateAccount)
			r.Get("/{id}", cfg.Handlers.GetAccount)
			r.Post("/{id}/deposits", cfg.Handlers.Deposit)
			r.Post("/{id}/withdrawals", cfg.Handlers.Withdraw)
		})
		r.Post("/transfers", cfg.Handlers.Transfer)
	})

	return r
}
