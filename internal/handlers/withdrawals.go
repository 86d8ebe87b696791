package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
)

type withdrawalRequest struct {
	Amount decimal.Decimal         `json:"amount"`
	Method models.WithdrawalMethod `json:"method"`
}

type settleRequest struct {
	Decision models.Decision `json:"decision"`
	Note     string          `json:"note"`
}

// RequestWithdrawal handles POST /api/v1/withdrawals.
func (a *API) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	wr, err := a.Withdrawals.RequestWithdrawal(r.Context(), caller(r).UserID, req.Amount, req.Method)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

// MyWithdrawals handles GET /api/v1/withdrawals.
func (a *API) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := a.Withdrawals.ListByCommenter(r.Context(), caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetWithdrawal handles GET /api/v1/withdrawals/{id}. Commenters only see
// their own requests.
func (a *API) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wr, err := a.Withdrawals.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if p := caller(r); p.Role != models.RoleAdmin && wr.CommenterID != p.UserID {
		a.writeServiceError(w, r, models.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// PendingWithdrawals handles GET /api/v1/admin/withdrawals.
func (a *API) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := a.Withdrawals.ListPending(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// SettleWithdrawal handles POST /api/v1/admin/withdrawals/{id}/settle.
func (a *API) SettleWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !decode(w, r, &req) {
		return
	}
	wr, err := a.Withdrawals.Settle(r.Context(), id, req.Decision, req.Note)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.log().Info("withdrawal settled by admin", "withdrawal_id", wr.ID, "admin_id", caller(r).UserID, "status", wr.Status)
	writeJSON(w, http.StatusOK, wr)
}
