// Package dashboard serves the signed-in user's overview page.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/orders"
)

type UserLookup interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error)
}

type SubOrderLister interface {
	ListByCommenter(ctx context.Context, commenterID uuid.UUID, status models.SubOrderStatus) ([]*models.SubOrder, error)
}

type OrderLister interface {
	ListByPublisher(ctx context.Context, publisherID uuid.UUID) ([]*orders.View, error)
}

type Handler struct {
	users     UserLookup
	balances  BalanceReader
	subOrders SubOrderLister
	orders    OrderLister
	log       *slog.Logger
}

func NewHandler(users UserLookup, balances BalanceReader, subOrders SubOrderLister, orders OrderLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, balances: balances, subOrders: subOrders, orders: orders, log: log}
}

type balance struct {
	Earned    string `json:"earned"`
	Reserved  string `json:"reserved"`
	Withdrawn string `json:"withdrawn"`
	Available string `json:"available"`
}

// Overview is the response of GET /api/v1/me. Only the section matching the
// caller's role is filled in.
type Overview struct {
	User      *models.User                  `json:"user,omitempty"`
	UserID    uuid.UUID                     `json:"user_id"`
	Role      models.Role                   `json:"role"`
	Balance   *balance                      `json:"balance,omitempty"`
	SubOrders map[models.SubOrderStatus]int `json:"sub_orders,omitempty"`
	Orders    map[models.OrderStatus]int    `json:"orders,omitempty"`
}

// GET /api/v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	ctx := r.Context()
	out := Overview{UserID: p.UserID, Role: p.Role}

	u, err := h.users.ByID(ctx, p.UserID)
	if err != nil {
		h.internal(w, "load user failed", err)
		return
	}
	out.User = u

	switch p.Role {
	case models.RoleCommenter:
		acc, err := h.balances.Balance(ctx, p.UserID)
		if err != nil {
			h.internal(w, "load balance failed", err)
			return
		}
		out.Balance = &balance{
			Earned:    acc.Earned.StringFixed(2),
			Reserved:  acc.Reserved.StringFixed(2),
			Withdrawn: acc.Withdrawn.StringFixed(2),
			Available: acc.Available().StringFixed(2),
		}
		subs, err := h.subOrders.ListByCommenter(ctx, p.UserID, "")
		if err != nil {
			h.internal(w, "list sub-orders failed", err)
			return
		}
		out.SubOrders = make(map[models.SubOrderStatus]int)
		for _, s := range subs {
			out.SubOrders[s.Status]++
		}
	case models.RolePublisher:
		views, err := h.orders.ListByPublisher(ctx, p.UserID)
		if err != nil {
			h.internal(w, "list orders failed", err)
			return
		}
		out.Orders = make(map[models.OrderStatus]int)
		for _, v := range views {
			out.Orders[v.Status]++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) internal(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
