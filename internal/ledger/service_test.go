package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
	"github.com/commentgig/backend/internal/repository/memstore"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func completedSub(commenter uuid.UUID, reward string) *models.SubOrder {
	return &models.SubOrder{
		ID:          uuid.New(),
		MainOrderID: uuid.New(),
		Seq:         1,
		CommenterID: &commenter,
		Status:      models.SubOrderCompleted,
		Reward:      dec(reward),
	}
}

func credit(t *testing.T, store *memstore.Store, svc *Service, sub *models.SubOrder) (*models.EarningsRecord, error) {
	t.Helper()
	var rec *models.EarningsRecord
	err := store.InTx(context.Background(), func(tx repository.Tx) error {
		var err error
		rec, err = svc.Credit(context.Background(), tx, sub)
		return err
	})
	return rec, err
}

type failingReferrals struct{}

func (failingReferrals) ReferrerOf(context.Context, uuid.UUID) (uuid.UUID, bool, error) {
	return uuid.Nil, false, errors.New("directory down")
}

// ---------------------------------------------------------------------------
// Credit
// ---------------------------------------------------------------------------

func TestCredit(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, nil)
	commenter := uuid.New()
	sub := completedSub(commenter, "10.00")

	rec, err := credit(t, store, svc, sub)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if rec.Kind != models.EarningTask || rec.Status != models.EarningCompleted || rec.Commission != nil {
		t.Errorf("record = %+v", rec)
	}
	if _, err := credit(t, store, svc, sub); !errors.Is(err, models.ErrDuplicateCredit) {
		t.Errorf("second credit: err = %v, want ErrDuplicateCredit", err)
	}

	acc, _ := svc.Balance(context.Background(), commenter)
	if !acc.Earned.Equal(dec("10.00")) || !acc.Available().Equal(dec("10.00")) {
		t.Errorf("account = %+v", acc)
	}
}

func TestCreditRejectsIncompleteSubOrder(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, nil)

	sub := completedSub(uuid.New(), "3.00")
	sub.Status = models.SubOrderPendingReview
	if _, err := credit(t, store, svc, sub); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending review: err = %v, want ErrInvalidTransition", err)
	}
	sub = completedSub(uuid.New(), "3.00")
	sub.CommenterID = nil
	if _, err := credit(t, store, svc, sub); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("no commenter: err = %v, want ErrInvalidTransition", err)
	}
}

func TestCreditWithCommission(t *testing.T) {
	store := memstore.New()
	commenter, inviter := uuid.New(), uuid.New()
	svc := NewService(store, ReferralCommission{
		Rate:      dec("0.05"),
		Referrals: StaticReferrals{commenter: inviter},
	}, nil)

	rec, err := credit(t, store, svc, completedSub(commenter, "127.50"))
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if rec.Commission == nil || !rec.Commission.Amount.Equal(dec("6.38")) {
		t.Fatalf("commission = %+v, want 6.38", rec.Commission)
	}

	ctx := context.Background()
	commissions, _ := svc.History(ctx, inviter, FilterCommission)
	if len(commissions) != 1 || !commissions[0].Amount.Equal(dec("6.38")) {
		t.Fatalf("inviter commission history = %+v", commissions)
	}
	// One record per kind: the commission points at the same sub-order as the task.
	if c := commissions[0]; c.SourceSubOrderID != rec.SourceSubOrderID || c.Kind != models.EarningCommission || rec.Kind != models.EarningTask {
		t.Errorf("commission %s/%s vs task %s/%s", c.Kind, c.SourceSubOrderID, rec.Kind, rec.SourceSubOrderID)
	}
	tasks, _ := svc.History(ctx, inviter, FilterTask)
	if len(tasks) != 0 {
		t.Errorf("inviter task history = %d records, want 0", len(tasks))
	}
	mine, _ := svc.History(ctx, commenter, FilterAll)
	if len(mine) != 1 || !mine[0].Amount.Equal(dec("127.50")) {
		t.Errorf("commenter history = %+v", mine)
	}
}

func TestCreditRollsBackWhenReferralLookupFails(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, ReferralCommission{Rate: dec("0.05"), Referrals: failingReferrals{}}, nil)
	commenter := uuid.New()

	if _, err := credit(t, store, svc, completedSub(commenter, "10.00")); err == nil {
		t.Fatal("expected error")
	}
	recs, _ := svc.History(context.Background(), commenter, FilterAll)
	if len(recs) != 0 {
		t.Errorf("records after failed credit = %d", len(recs))
	}
}

func TestReferralCommission(t *testing.T) {
	commenter, inviter := uuid.New(), uuid.New()
	p := ReferralCommission{Rate: dec("0.05"), Referrals: StaticReferrals{commenter: inviter, inviter: inviter}}
	ctx := context.Background()

	tests := []struct {
		name   string
		who    uuid.UUID
		amount string
		want   string
	}{
		{"rounds half up", commenter, "127.50", "6.38"},
		{"whole cents", commenter, "10.00", "0.50"},
		{"below one cent", commenter, "0.05", ""},
		{"no inviter", uuid.New(), "10.00", ""},
		{"self referral", inviter, "10.00", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := p.Commission(ctx, tt.who, dec(tt.amount))
			if err != nil {
				t.Fatalf("Commission: %v", err)
			}
			if tt.want == "" {
				if c != nil {
					t.Errorf("commission = %+v, want none", c)
				}
				return
			}
			if c == nil || !c.Amount.Equal(dec(tt.want)) {
				t.Errorf("commission = %+v, want %s", c, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "all": FilterAll, "task": FilterTask, "commission": FilterCommission} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("bonus"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ParseFilter(bonus): err = %v, want validation", err)
	}
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

func TestSummaryPeriods(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, nil)
	commenter := uuid.New()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	post := func(at time.Time, amount string) {
		svc.Now = func() time.Time { return at }
		if _, err := credit(t, store, svc, completedSub(commenter, amount)); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	post(now.Add(-time.Hour), "3.00")    // today
	post(now.Add(-20*time.Hour), "2.00") // yesterday
	post(now.AddDate(0, 0, -5), "10.00") // this week
	post(now.AddDate(0, 0, -8), "50.00") // this month only
	post(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), "200.00")
	svc.Now = func() time.Time { return now }

	sum, err := svc.Summary(context.Background(), commenter)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"today", sum.Today, "3.00"},
		{"yesterday", sum.Yesterday, "2.00"},
		{"last 7 days", sum.Last7Days, "15.00"},
		{"this month", sum.ThisMonth, "65.00"},
		{"total", sum.Total, "265.00"},
		{"available", sum.Available, "265.00"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if sum.CompletedTasks != 5 {
		t.Errorf("completed tasks = %d, want 5", sum.CompletedTasks)
	}
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

func TestReconcileDetectsDrift(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, nil)
	commenter := uuid.New()
	ctx := context.Background()
	if _, err := credit(t, store, svc, completedSub(commenter, "10.00")); err != nil {
		t.Fatal(err)
	}

	report, err := svc.Reconcile(ctx, commenter)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Drift {
		t.Fatalf("unexpected drift: %+v", report)
	}

	// Corrupt the materialized row.
	_ = store.InTx(ctx, func(tx repository.Tx) error {
		acc, _ := tx.Accounts().LockAccount(ctx, commenter)
		acc.Earned = dec("99.00")
		return tx.Accounts().SaveAccount(ctx, acc)
	})
	report, _ = svc.Reconcile(ctx, commenter)
	if !report.Drift || !report.Computed.Earned.Equal(dec("10.00")) {
		t.Errorf("report = %+v, want drift with computed earned 10.00", report)
	}
}
