package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/orders"
)

type createOrderRequest struct {
	TemplateID      string           `json:"template_id"`
	MaxParticipants int              `json:"max_participants"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Requirements    string           `json:"requirements"`
}

// CreateOrder handles POST /api/v1/orders.
func (a *API) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := a.Orders.CreateOrder(r.Context(), orders.CreateOrderInput{
		TemplateID:      req.TemplateID,
		PublisherID:     caller(r).UserID,
		MaxParticipants: req.MaxParticipants,
		UnitPrice:       req.UnitPrice,
		Requirements:    req.Requirements,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListOrders handles GET /api/v1/orders: the caller's own orders.
func (a *API) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := a.Orders.ListByPublisher(r.Context(), caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ListOpenOrders handles GET /api/v1/orders/open?limit=N for commenters
// looking for work.
func (a *API) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeBadRequest(w, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	views, err := a.Orders.ListOpen(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	p := caller(r)
	for i, v := range views {
		views[i] = visibleTo(p, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetOrder handles GET /api/v1/orders/{id}. Publishers only see their own
// orders. Commenters see any order, but only their own claims in full.
func (a *API) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := a.Orders.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	p := caller(r)
	if p.Role == models.RolePublisher && view.Order.PublisherID != p.UserID {
		a.writeServiceError(w, r, models.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, visibleTo(p, view))
}

// visibleTo strips claimant identity, proof and review notes from sub-orders
// the caller neither owns nor holds. The owning publisher and admins get the
// view unchanged.
func visibleTo(p *middleware.Principal, view *orders.View) *orders.View {
	if p.Role == models.RoleAdmin || view.Order.PublisherID == p.UserID {
		return view
	}
	out := *view
	out.SubOrders = make([]*models.SubOrder, len(view.SubOrders))
	for i, s := range view.SubOrders {
		if s.HeldBy(p.UserID) {
			out.SubOrders[i] = s
			continue
		}
		cp := s.Clone()
		cp.CommenterID = nil
		cp.Proof = nil
		cp.ClaimedAt = nil
		cp.SubmittedAt = nil
		cp.ReviewedAt = nil
		cp.RejectionNote = ""
		cp.RejectCount = 0
		out.SubOrders[i] = cp
	}
	return &out
}

// ArchiveOrder handles POST /api/v1/orders/{id}/archive.
func (a *API) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.Orders.Archive(r.Context(), id, caller(r).UserID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
