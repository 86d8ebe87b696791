package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/commentgig/backend/internal/auth"
	"github.com/commentgig/backend/internal/dashboard"
	"github.com/commentgig/backend/internal/handlers"
	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/models"
)

type Deps struct {
	Auth           *auth.Handler
	Tokens         middleware.TokenValidator
	API            *handlers.API
	Dashboard      *dashboard.Handler
	Idempotency    middleware.IdempotencyStore
	IdempotencyTTL time.Duration
	// Health reports whether storage is reachable; nil means always healthy.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// New returns an http.Handler that serves the API under /api/v1.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthz(d.Health))

	publisher := middleware.RequireRole(models.RolePublisher)
	commenter := middleware.RequireRole(models.RoleCommenter)
	admin := middleware.RequireRole(models.RoleAdmin)
	api := d.API

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestLogger(d.Logger))

		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Tokens))
			r.Use(middleware.Idempotency(d.Idempotency, d.IdempotencyTTL, d.Logger))

			r.Get("/me", d.Dashboard.GetMe)
			r.Get("/templates", api.ListTemplates)
			r.Get("/orders/{id}", api.GetOrder)

			r.Group(func(r chi.Router) {
				r.Use(publisher)
				r.Post("/orders", api.CreateOrder)
				r.Get("/orders", api.ListOrders)
				r.Post("/orders/{id}/archive", api.ArchiveOrder)
				r.Get("/reviews", api.PendingReviews)
				r.Post("/sub-orders/{id}/approve", api.Approve)
				r.Post("/sub-orders/{id}/reject", api.Reject)
			})

			r.Group(func(r chi.Router) {
				r.Use(commenter)
				r.Get("/orders/open", api.ListOpenOrders)
				r.Post("/orders/{id}/claim", api.ClaimNext)
				r.Post("/sub-orders/{id}/claim", api.Claim)
				r.Post("/sub-orders/{id}/proof", api.SubmitProof)
				r.Post("/sub-orders/{id}/resubmit", api.Resubmit)
				r.Post("/sub-orders/{id}/cancel", api.CancelClaim)
				r.Get("/me/sub-orders", api.MySubOrders)
				r.Get("/me/balance", api.MyBalance)
				r.Get("/me/earnings", api.MyEarnings)
				r.Get("/me/earnings/summary", api.MyEarningsSummary)
				r.Post("/withdrawals", api.RequestWithdrawal)
				r.Get("/withdrawals", api.MyWithdrawals)
			})

			r.With(middleware.RequireRole(models.RoleCommenter, models.RoleAdmin)).
				Get("/withdrawals/{id}", api.GetWithdrawal)

			r.Route("/admin", func(r chi.Router) {
				r.Use(admin)
				r.Get("/withdrawals", api.PendingWithdrawals)
				r.Post("/withdrawals/{id}/settle", api.SettleWithdrawal)
				r.Get("/accounts/{id}/reconcile", api.ReconcileAccount)
			})
		})
	})

	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
