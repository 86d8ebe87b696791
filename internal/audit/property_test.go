package audit

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/ledger"
	"github.com/commentgig/backend/internal/models"
)

// TestRandomizedLifecycleInvariants drives random claims, submissions,
// reviews and withdrawals and checks after every step that progress always
// covers every sub-order, each completed sub-order has exactly one task
// credit, and stored balances match the records they derive from.
// Commission records share the source sub-order of the task they pay on,
// so only task records are counted per sub-order.
func TestRandomizedLifecycleInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		commenters := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
		f := newFixture(t, ledger.ReferralCommission{
			Rate:      dec("0.05"),
			Referrals: ledger.StaticReferrals{commenters[1]: commenters[0]},
		})
		ctx := context.Background()
		publisher := uuid.New()

		var orderIDs []uuid.UUID
		var subIDs []uuid.UUID
		for i := 0; i < 3; i++ {
			v := f.createOrder(t, publisher, 2+rng.IntN(4), []string{"3.00", "2.00", "12.75"}[i])
			orderIDs = append(orderIDs, v.Order.ID)
			subIDs = append(subIDs, v.Order.SubOrderIDs...)
		}
		var withdrawals []uuid.UUID

		for step := 0; step < 300; step++ {
			sub := subIDs[rng.IntN(len(subIDs))]
			who := commenters[rng.IntN(len(commenters))]
			switch rng.IntN(7) {
			case 0:
				_, _ = f.submissions.Claim(ctx, sub, who)
			case 1:
				_, _ = f.submissions.SubmitProof(ctx, sub, who, proof())
			case 2:
				_, _ = f.submissions.Resubmit(ctx, sub, who, proof())
			case 3:
				_, _ = f.audit.Approve(ctx, sub, publisher)
			case 4:
				_, _ = f.audit.Reject(ctx, sub, publisher, "redo")
			case 5:
				amount := decimal.NewFromInt(int64(1 + rng.IntN(20)))
				if w, err := f.withdrawals.RequestWithdrawal(ctx, who, amount, models.MethodWechat); err == nil {
					withdrawals = append(withdrawals, w.ID)
				}
			case 6:
				if len(withdrawals) > 0 {
					id := withdrawals[rng.IntN(len(withdrawals))]
					decision := models.DecisionApprove
					if rng.IntN(2) == 0 {
						decision = models.DecisionReject
					}
					_, _ = f.withdrawals.Settle(ctx, id, decision, "")
				}
			}

			for _, id := range orderIDs {
				view, err := f.orders.Get(ctx, id)
				if err != nil {
					t.Fatalf("seed %d step %d: Get: %v", seed, step, err)
				}
				if view.Progress.Total() != view.Order.MaxParticipants {
					t.Fatalf("seed %d step %d: progress %+v does not cover %d sub-orders",
						seed, step, view.Progress, view.Order.MaxParticipants)
				}
				for _, s := range view.SubOrders {
					tasks := 0
					for _, r := range f.records(t, s.ID) {
						if r.Kind == models.EarningTask {
							tasks++
						}
					}
					want := 0
					if s.Status == models.SubOrderCompleted {
						want = 1
					}
					if tasks != want {
						t.Fatalf("seed %d step %d: sub-order %s is %s with %d task credits",
							seed, step, s.ID, s.Status, tasks)
					}
				}
			}
			for _, who := range commenters {
				report, err := f.ledger.Reconcile(ctx, who)
				if err != nil {
					t.Fatalf("seed %d step %d: Reconcile: %v", seed, step, err)
				}
				if report.Drift {
					t.Fatalf("seed %d step %d: drift for %s: stored %+v computed %+v",
						seed, step, who, report.Stored, report.Computed)
				}
				if report.Stored.Available().IsNegative() {
					t.Fatalf("seed %d step %d: negative balance for %s", seed, step, who)
				}
			}
		}
	}
}
