package handlers

import (
	"net/http"

	"github.com/commentgig/backend/internal/ledger"
	"github.com/commentgig/backend/internal/models"
)

type balanceResponse struct {
	Earned    string `json:"earned"`
	Reserved  string `json:"reserved"`
	Withdrawn string `json:"withdrawn"`
	Available string `json:"available"`
}

func toBalance(acc *models.CommenterAccount) balanceResponse {
	return balanceResponse{
		Earned:    acc.Earned.StringFixed(2),
		Reserved:  acc.Reserved.StringFixed(2),
		Withdrawn: acc.Withdrawn.StringFixed(2),
		Available: acc.Available().StringFixed(2),
	}
}

// MyBalance handles GET /api/v1/me/balance.
func (a *API) MyBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := a.Ledger.Balance(r.Context(), caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(acc))
}

// MyEarnings handles GET /api/v1/me/earnings?type=all|task|commission.
func (a *API) MyEarnings(w http.ResponseWriter, r *http.Request) {
	filter, err := ledger.ParseFilter(r.URL.Query().Get("type"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	recs, err := a.Ledger.History(r.Context(), caller(r).UserID, filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*models.EarningsRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// MyEarningsSummary handles GET /api/v1/me/earnings/summary.
func (a *API) MyEarningsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.Ledger.Summary(r.Context(), caller(r).UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ReconcileAccount handles GET /api/v1/admin/accounts/{id}/reconcile.
func (a *API) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := a.Ledger.Reconcile(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
