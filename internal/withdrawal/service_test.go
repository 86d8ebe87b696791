package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/events"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
	"github.com/commentgig/backend/internal/repository/memstore"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// monday is a fixed clock reading on a Monday.
var monday = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, policy Policy) (*Service, *memstore.Store, *events.Recorder) {
	t.Helper()
	store := memstore.New()
	rec := &events.Recorder{}
	svc := NewService(store, policy, rec, nil)
	svc.Now = func() time.Time { return monday }
	return svc, store, rec
}

// fund seeds earned balance for a commenter directly on the account row.
func fund(t *testing.T, store *memstore.Store, commenter uuid.UUID, amount string) {
	t.Helper()
	ctx := context.Background()
	err := store.InTx(ctx, func(tx repository.Tx) error {
		acc, err := tx.Accounts().LockAccount(ctx, commenter)
		if err != nil {
			return err
		}
		acc.Earned = acc.Earned.Add(dec(amount))
		return tx.Accounts().SaveAccount(ctx, acc)
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func account(t *testing.T, store *memstore.Store, commenter uuid.UUID) *models.CommenterAccount {
	t.Helper()
	var acc *models.CommenterAccount
	_ = store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		acc, err = tx.Accounts().Account(context.Background(), commenter)
		return err
	})
	return acc
}

// ---------------------------------------------------------------------------
// RequestWithdrawal
// ---------------------------------------------------------------------------

func TestRequestWithdrawalValidationOrder(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowedDays = []time.Weekday{time.Friday}
	svc, store, _ := newTestService(t, policy)
	commenter := uuid.New()
	fund(t, store, commenter, "20.00")
	ctx := context.Background()

	tests := []struct {
		name   string
		amount string
		method models.WithdrawalMethod
		want   error
	}{
		{"zero amount beats bad method", "0", "paypal", models.ErrInvalidAmount},
		{"negative amount", "-5", models.MethodBank, models.ErrInvalidAmount},
		{"sub-cent amount", "1.005", models.MethodBank, models.ErrInvalidAmount},
		{"bad method beats range", "0.10", "paypal", models.ErrInvalidMethod},
		{"below minimum", "0.50", models.MethodBank, models.ErrAmountOutOfRange},
		{"above maximum", "5000.01", models.MethodBank, models.ErrAmountOutOfRange},
		{"insufficient beats closed window", "30.00", models.MethodBank, models.ErrInsufficientBalance},
		{"closed window", "10.00", models.MethodBank, models.ErrWithdrawalWindowClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RequestWithdrawal(ctx, commenter, dec(tt.amount), tt.method)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if got := account(t, store, commenter); !got.Reserved.IsZero() {
		t.Errorf("failed requests reserved %s", got.Reserved)
	}
}

func TestRequestWithdrawalInsufficientLeavesBalance(t *testing.T) {
	svc, store, _ := newTestService(t, DefaultPolicy())
	commenter := uuid.New()
	fund(t, store, commenter, "30.00")

	_, err := svc.RequestWithdrawal(context.Background(), commenter, dec("50.00"), models.MethodAlipay)
	if !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if !errors.Is(err, models.ErrPolicyViolation) {
		t.Errorf("insufficient balance should be a policy violation")
	}
	if got := account(t, store, commenter).Available(); !got.Equal(dec("30.00")) {
		t.Errorf("available = %s, want 30.00", got)
	}
	list, _ := svc.ListByCommenter(context.Background(), commenter)
	if len(list) != 0 {
		t.Errorf("refused request was stored")
	}
}

func TestRequestWithdrawalReservesAmountPlusFee(t *testing.T) {
	policy := DefaultPolicy()
	policy.FixedFee = dec("1.00")
	policy.FeeRate = dec("0.006")
	svc, store, _ := newTestService(t, policy)
	commenter := uuid.New()
	fund(t, store, commenter, "100.00")

	req, err := svc.RequestWithdrawal(context.Background(), commenter, dec("50.00"), models.MethodWechat)
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if !req.Fee.Equal(dec("1.30")) || req.Status != models.WithdrawalPending {
		t.Errorf("request = %+v", req)
	}
	acc := account(t, store, commenter)
	if !acc.Reserved.Equal(dec("51.30")) || !acc.Available().Equal(dec("48.70")) {
		t.Errorf("account = reserved %s available %s", acc.Reserved, acc.Available())
	}

	// Fee counts against the balance.
	if _, err := svc.RequestWithdrawal(context.Background(), commenter, dec("48.00"), models.MethodWechat); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Errorf("amount fits but fee does not: err = %v", err)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, store, _ := newTestService(t, DefaultPolicy())
	commenter := uuid.New()
	fund(t, store, commenter, "100.00")

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestWithdrawal(context.Background(), commenter, dec("30.00"), models.MethodBank)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, models.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Errorf("%d requests accepted, want 3", ok)
	}
	if got := account(t, store, commenter).Available(); !got.Equal(dec("10.00")) {
		t.Errorf("available = %s, want 10.00", got)
	}
}

// ---------------------------------------------------------------------------
// Settle
// ---------------------------------------------------------------------------

func TestSettle(t *testing.T) {
	svc, store, rec := newTestService(t, DefaultPolicy())
	commenter := uuid.New()
	fund(t, store, commenter, "100.00")
	ctx := context.Background()

	a, err := svc.RequestWithdrawal(ctx, commenter, dec("40.00"), models.MethodBank)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.RequestWithdrawal(ctx, commenter, dec("25.00"), models.MethodBank)
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := svc.ListPending(ctx)
	if len(pending) != 2 || pending[0].ID != a.ID {
		t.Fatalf("pending queue should be oldest first, got %d", len(pending))
	}

	if _, err := svc.Settle(ctx, a.ID, "maybe", ""); !errors.Is(err, models.ErrInvalidDecision) {
		t.Errorf("bad decision: err = %v", err)
	}

	approved, err := svc.Settle(ctx, a.ID, models.DecisionApprove, "paid")
	if err != nil {
		t.Fatalf("Settle approve: %v", err)
	}
	if approved.Status != models.WithdrawalApproved || approved.ProcessedAt == nil {
		t.Errorf("approved = %+v", approved)
	}
	if _, err := svc.Settle(ctx, b.ID, models.DecisionReject, "account mismatch"); err != nil {
		t.Fatalf("Settle reject: %v", err)
	}
	if _, err := svc.Settle(ctx, a.ID, models.DecisionReject, ""); !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Errorf("settle twice: err = %v, want ErrAlreadyProcessed", err)
	}
	if _, err := svc.Settle(ctx, uuid.New(), models.DecisionApprove, ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown request: err = %v, want not found", err)
	}

	acc := account(t, store, commenter)
	if !acc.Withdrawn.Equal(dec("40.00")) || !acc.Reserved.IsZero() || !acc.Available().Equal(dec("60.00")) {
		t.Errorf("account = withdrawn %s reserved %s available %s", acc.Withdrawn, acc.Reserved, acc.Available())
	}
	if n := len(rec.OfType(events.WithdrawalSettled)); n != 2 {
		t.Errorf("settled events = %d, want 2", n)
	}
	got, _ := svc.Get(ctx, b.ID)
	if got.Status != models.WithdrawalRejected || got.Note != "account mismatch" {
		t.Errorf("rejected request = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Policy
// ---------------------------------------------------------------------------

func TestPolicy(t *testing.T) {
	p := Policy{MinAmount: dec("10"), FixedFee: dec("0.50"), FeeRate: dec("0.01")}
	if !p.InRange(dec("1000000")) {
		t.Error("zero MaxAmount should mean no upper bound")
	}
	if p.InRange(dec("9.99")) {
		t.Error("9.99 should be below minimum")
	}
	if got := p.Fee(dec("33.33")); !got.Equal(dec("0.83")) {
		t.Errorf("Fee(33.33) = %s, want 0.83", got)
	}
	if !p.Open(monday) {
		t.Error("no allowed days should mean always open")
	}
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays(" 1, 3 ,5")
	if err != nil {
		t.Fatalf("ParseDays: %v", err)
	}
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(days) != len(want) {
		t.Fatalf("days = %v", days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("days[%d] = %v, want %v", i, days[i], want[i])
		}
	}
	if days, _ := ParseDays(""); days != nil {
		t.Errorf("empty = %v, want nil", days)
	}
	for _, bad := range []string{"7", "mon", "1,,2"} {
		if _, err := ParseDays(bad); err == nil {
			t.Errorf("ParseDays(%q) should fail", bad)
		}
	}
}
