package orders

import (
	"testing"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
)

func subs(statuses ...models.SubOrderStatus) []*models.SubOrder {
	out := make([]*models.SubOrder, len(statuses))
	for i, st := range statuses {
		out[i] = &models.SubOrder{ID: uuid.New(), Seq: i + 1, Status: st}
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	const (
		pending   = models.SubOrderPending
		process   = models.SubOrderProcessing
		review    = models.SubOrderPendingReview
		completed = models.SubOrderCompleted
		cancelled = models.SubOrderCancelled
	)
	cases := []struct {
		name string
		in   []*models.SubOrder
		want models.OrderStatus
	}{
		{"all pending", subs(pending, pending, pending), models.OrderPending},
		{"all completed", subs(completed, completed), models.OrderCompleted},
		{"review beats processing", subs(process, review, pending), models.OrderReviewing},
		{"review beats completed", subs(completed, review), models.OrderReviewing},
		{"processing", subs(process, pending), models.OrderProcessing},
		{"partially completed", subs(completed, pending, pending), models.OrderProcessing},
		{"cancelled only", subs(cancelled, pending), models.OrderPending},
		{"completed and cancelled", subs(completed, cancelled), models.OrderProcessing},
		{"empty", nil, models.OrderPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.in); got != tc.want {
				t.Errorf("DeriveStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComputeProgressBuckets(t *testing.T) {
	in := subs(models.SubOrderPending, models.SubOrderProcessing, models.SubOrderProcessing,
		models.SubOrderPendingReview, models.SubOrderCompleted, models.SubOrderCancelled)
	in[2].RejectCount = 1

	got := ComputeProgress(in)
	want := Progress{Completed: 1, InProgress: 1, PendingReview: 1, Pending: 1, Rejected: 2}
	if got != want {
		t.Fatalf("ComputeProgress = %+v, want %+v", got, want)
	}
	if got.Total() != len(in) {
		t.Errorf("Total = %d, want %d", got.Total(), len(in))
	}
}

func TestStatusLabels(t *testing.T) {
	for _, st := range []models.OrderStatus{models.OrderPending, models.OrderProcessing, models.OrderReviewing, models.OrderCompleted} {
		if StatusLabel(st) == string(st) {
			t.Errorf("status %s has no label", st)
		}
	}
	rejected := &models.SubOrder{Status: models.SubOrderProcessing, RejectCount: 2}
	claimed := &models.SubOrder{Status: models.SubOrderProcessing}
	if SubOrderLabel(rejected) == SubOrderLabel(claimed) {
		t.Error("rejected and freshly claimed sub-orders should read differently")
	}
}
