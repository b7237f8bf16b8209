package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bankadmin/ledger/internal/auth"
	"github.com/bankadmin/ledger/internal/http/account"
	"github.com/bankadmin/ledger/internal/http/posting"
	"github.com/bankadmin/ledger/internal/http/respond"
	"github.com/bankadmin/ledger/internal/http/transaction"
)

type Options struct {
	Timeout        time.Duration
	AllowedOrigins []string
}

// Pinger reports whether the ledger store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

func New(
	opts Options,
	verifier *auth.Verifier,
	health Pinger,
	accountsV1 *account.Handler,
	transactionsV1 *transaction.Handler,
	postingsV1 *posting.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	router.Get("/health", healthHandler(health))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Route("/accounts", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			accountsV1.Routes(r)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			transactionsV1.Routes(r)
		})

		r.Route("/postings", postingsV1.Routes)
	})

	return router
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			w.Header().Set("Retry-After", respond.RetryAfter)
			respond.Error(w, http.StatusServiceUnavailable, "store_unavailable", "ledger store unreachable")

			return
		}

		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
