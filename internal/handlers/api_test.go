package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/middleware"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/orders"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubSubmissions struct {
	SubmissionService
	err error
}

func (s stubSubmissions) Claim(_ context.Context, id, commenter uuid.UUID) (*models.SubOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SubOrder{ID: id, CommenterID: &commenter, Status: models.SubOrderProcessing}, nil
}

type stubOrders struct {
	OrderService
	view *orders.View
}

func (s stubOrders) Get(context.Context, uuid.UUID) (*orders.View, error) {
	if s.view == nil {
		return nil, models.ErrOrderNotFound
	}
	return s.view, nil
}

type stubWithdrawals struct {
	WithdrawalService
	gotAmount decimal.Decimal
	gotMethod models.WithdrawalMethod
}

func (s *stubWithdrawals) RequestWithdrawal(_ context.Context, commenter uuid.UUID, amount decimal.Decimal, method models.WithdrawalMethod) (*models.WithdrawalRequest, error) {
	s.gotAmount, s.gotMethod = amount, method
	return &models.WithdrawalRequest{ID: uuid.New(), CommenterID: commenter, Amount: amount, Method: method}, nil
}

func serve(t *testing.T, p *middleware.Principal, pattern, method, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWriteServiceErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantKind string
	}{
		{models.ErrIncompleteProof, http.StatusBadRequest, "validation"},
		{models.ErrInsufficientBalance, http.StatusUnprocessableEntity, "policy_violation"},
		{models.ErrAlreadyClaimed, http.StatusConflict, "state_conflict"},
		{models.ErrNotOwner, http.StatusForbidden, "forbidden"},
		{models.ErrSubOrderNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", models.ErrDuplicateParticipation), http.StatusConflict, "state_conflict"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}
	principal := &middleware.Principal{UserID: uuid.New(), Role: models.RoleCommenter}
	for _, tc := range cases {
		api := &API{Submissions: stubSubmissions{err: tc.err}}
		rec := serve(t, principal, "/sub-orders/{id}/claim", http.MethodPost,
			"/sub-orders/"+uuid.NewString()+"/claim", "", api.Claim)
		if rec.Code != tc.wantCode {
			t.Errorf("%v: status %d, want %d", tc.err, rec.Code, tc.wantCode)
			continue
		}
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != tc.wantKind {
			t.Errorf("%v: code %q, want %q", tc.err, body.Code, tc.wantKind)
		}
		if tc.wantCode == http.StatusInternalServerError && strings.Contains(body.Error, "connection reset") {
			t.Error("internal error details leaked to client")
		}
	}
}

func TestGetOrderHidesOtherPublishersOrders(t *testing.T) {
	owner := uuid.New()
	view := &orders.View{Order: &models.MainOrder{ID: uuid.New(), PublisherID: owner}}
	api := &API{Orders: stubOrders{view: view}}
	target := "/orders/" + view.Order.ID.String()

	cases := []struct {
		name string
		p    *middleware.Principal
		want int
	}{
		{"owner", &middleware.Principal{UserID: owner, Role: models.RolePublisher}, http.StatusOK},
		{"other publisher", &middleware.Principal{UserID: uuid.New(), Role: models.RolePublisher}, http.StatusForbidden},
		{"commenter", &middleware.Principal{UserID: uuid.New(), Role: models.RoleCommenter}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, tc.p, "/orders/{id}", http.MethodGet, target, "", api.GetOrder)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestGetOrderHidesOtherCommentersClaims(t *testing.T) {
	owner, me, other := uuid.New(), uuid.New(), uuid.New()
	orderID := uuid.New()
	view := &orders.View{
		Order: &models.MainOrder{ID: orderID, PublisherID: owner},
		SubOrders: []*models.SubOrder{
			{ID: uuid.New(), MainOrderID: orderID, Seq: 1, CommenterID: &other, Status: models.SubOrderProcessing,
				Proof: &models.Proof{ScreenshotRef: "other-shot", ReviewLink: "https://example.com/other"},
				RejectionNote: "blurry screenshot", RejectCount: 1},
			{ID: uuid.New(), MainOrderID: orderID, Seq: 2, CommenterID: &me, Status: models.SubOrderPendingReview,
				Proof: &models.Proof{ScreenshotRef: "my-shot"}},
		},
	}
	api := &API{Orders: stubOrders{view: view}}
	target := "/orders/" + orderID.String()

	rec := serve(t, &middleware.Principal{UserID: me, Role: models.RoleCommenter}, "/orders/{id}", http.MethodGet, target, "", api.GetOrder)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, leaked := range []string{other.String(), "other-shot", "example.com/other", "blurry screenshot"} {
		if strings.Contains(body, leaked) {
			t.Errorf("commenter view leaks %q", leaked)
		}
	}
	for _, own := range []string{me.String(), "my-shot"} {
		if !strings.Contains(body, own) {
			t.Errorf("commenter view is missing own %q", own)
		}
	}
	if view.SubOrders[0].CommenterID == nil || view.SubOrders[0].Proof == nil {
		t.Error("projection mutated the service view")
	}

	rec = serve(t, &middleware.Principal{UserID: owner, Role: models.RolePublisher}, "/orders/{id}", http.MethodGet, target, "", api.GetOrder)
	if !strings.Contains(rec.Body.String(), "other-shot") {
		t.Error("owning publisher should see every proof")
	}
}

func TestRequestWithdrawalParsesDecimalAmount(t *testing.T) {
	stub := &stubWithdrawals{}
	api := &API{Withdrawals: stub}
	p := &middleware.Principal{UserID: uuid.New(), Role: models.RoleCommenter}

	rec := serve(t, p, "/withdrawals", http.MethodPost, "/withdrawals", `{"amount":"12.34","method":"wechat"}`, api.RequestWithdrawal)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if !stub.gotAmount.Equal(decimal.RequireFromString("12.34")) || stub.gotMethod != models.MethodWechat {
		t.Errorf("service got amount=%s method=%s", stub.gotAmount, stub.gotMethod)
	}

	rec = serve(t, p, "/withdrawals", http.MethodPost, "/withdrawals", `{"amount":`, api.RequestWithdrawal)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status %d, want 400", rec.Code)
	}
}

func TestListOpenOrdersRejectsBadLimit(t *testing.T) {
	api := &API{}
	p := &middleware.Principal{UserID: uuid.New(), Role: models.RoleCommenter}
	for _, q := range []string{"0", "201", "ten"} {
		rec := serve(t, p, "/orders/open", http.MethodGet, "/orders/open?limit="+q, "", api.ListOpenOrders)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status %d, want 400", q, rec.Code)
		}
	}
}

func TestMySubOrdersRejectsUnknownStatus(t *testing.T) {
	api := &API{}
	p := &middleware.Principal{UserID: uuid.New(), Role: models.RoleCommenter}
	rec := serve(t, p, "/me/sub-orders", http.MethodGet, "/me/sub-orders?status=lost", "", api.MySubOrders)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}
