package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/ledger"
	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/orders"
)

// OrderService is the subset of the order store the handlers call.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (*orders.View, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.View, error)
	ListByPublisher(ctx context.Context, publisherID uuid.UUID) ([]*orders.View, error)
	ListOpen(ctx context.Context, limit int) ([]*orders.View, error)
	Archive(ctx context.Context, id, publisherID uuid.UUID) error
}

type SubmissionService interface {
	Claim(ctx context.Context, subOrderID, commenterID uuid.UUID) (*models.SubOrder, error)
	ClaimNext(ctx context.Context, mainOrderID, commenterID uuid.UUID) (*models.SubOrder, error)
	SubmitProof(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof) (*models.SubOrder, error)
	Resubmit(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof) (*models.SubOrder, error)
	Cancel(ctx context.Context, subOrderID, commenterID uuid.UUID) (*models.SubOrder, error)
	ListByCommenter(ctx context.Context, commenterID uuid.UUID, status models.SubOrderStatus) ([]*models.SubOrder, error)
}

type AuditService interface {
	Approve(ctx context.Context, subOrderID, publisherID uuid.UUID) (*models.EarningsRecord, error)
	Reject(ctx context.Context, subOrderID, publisherID uuid.UUID, note string) (*models.SubOrder, error)
	ListPendingReview(ctx context.Context, publisherID uuid.UUID) ([]*models.SubOrder, error)
}

type LedgerService interface {
	Balance(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error)
	History(ctx context.Context, commenterID uuid.UUID, filter ledger.Filter) ([]*models.EarningsRecord, error)
	Summary(ctx context.Context, commenterID uuid.UUID) (*ledger.Summary, error)
	Reconcile(ctx context.Context, commenterID uuid.UUID) (*ledger.ReconcileReport, error)
}

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, commenterID uuid.UUID, amount decimal.Decimal, method models.WithdrawalMethod) (*models.WithdrawalRequest, error)
	Settle(ctx context.Context, requestID uuid.UUID, decision models.Decision, note string) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	ListByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.WithdrawalRequest, error)
	ListPending(ctx context.Context) ([]*models.WithdrawalRequest, error)
}

type TemplateLister interface {
	List() []models.TaskTemplate
}

// API serves the /api/v1 marketplace endpoints. Role checks happen in the
// router; handlers only check ownership.
type API struct {
	Orders      OrderService
	Submissions SubmissionService
	Audit       AuditService
	Ledger      LedgerService
	Withdrawals WithdrawalService
	Templates   TemplateLister
	Logger      *slog.Logger
}

func (a *API) log() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// ListTemplates handles GET /api/v1/templates.
func (a *API) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Templates.List())
}

// --- errors ---

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
// Anything outside the taxonomy is logged and reported as 500.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code string
	switch models.Kind(err) {
	case models.ErrValidation:
		status, code = http.StatusBadRequest, "validation"
	case models.ErrPolicyViolation:
		status, code = http.StatusUnprocessableEntity, "policy_violation"
	case models.ErrStateConflict:
		status, code = http.StatusConflict, "state_conflict"
	case models.ErrForbidden:
		status, code = http.StatusForbidden, "forbidden"
	case models.ErrNotFound:
		status, code = http.StatusNotFound, "not_found"
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		a.log().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "validation"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- request helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated principal. The router guarantees one.
func caller(r *http.Request) *middleware.Principal {
	if p := middleware.PrincipalFromCtx(r.Context()); p != nil {
		return p
	}
	return &middleware.Principal{}
}
