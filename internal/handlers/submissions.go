package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
)

// ClaimNext handles POST /api/v1/orders/{id}/claim.
func (a *API) ClaimNext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := a.Submissions.ClaimNext(r.Context(), id, caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Claim handles POST /api/v1/sub-orders/{id}/claim.
func (a *API) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := a.Submissions.Claim(r.Context(), id, caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// SubmitProof handles POST /api/v1/sub-orders/{id}/proof.
func (a *API) SubmitProof(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, a.Submissions.SubmitProof)
}

// Resubmit handles POST /api/v1/sub-orders/{id}/resubmit.
func (a *API) Resubmit(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, a.Submissions.Resubmit)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof) (*models.SubOrder, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var proof models.Proof
	if !decode(w, r, &proof) {
		return
	}
	sub, err := op(r.Context(), id, caller(r).UserID, proof)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// CancelClaim handles POST /api/v1/sub-orders/{id}/cancel.
func (a *API) CancelClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := a.Submissions.Cancel(r.Context(), id, caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// MySubOrders handles GET /api/v1/me/sub-orders?status=...
func (a *API) MySubOrders(w http.ResponseWriter, r *http.Request) {
	status := models.SubOrderStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.SubOrderPending, models.SubOrderProcessing, models.SubOrderPendingReview,
		models.SubOrderCompleted, models.SubOrderCancelled:
	default:
		writeBadRequest(w, "unknown status filter")
		return
	}
	subs, err := a.Submissions.ListByCommenter(r.Context(), caller(r).UserID, status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// --- review ---

type rejectRequest struct {
	Note string `json:"note"`
}

// Approve handles POST /api/v1/sub-orders/{id}/approve.
func (a *API) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := a.Audit.Approve(r.Context(), id, caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Reject handles POST /api/v1/sub-orders/{id}/reject.
func (a *API) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := a.Audit.Reject(r.Context(), id, caller(r).UserID, req.Note)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// PendingReviews handles GET /api/v1/reviews.
func (a *API) PendingReviews(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Audit.ListPendingReview(r.Context(), caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}
