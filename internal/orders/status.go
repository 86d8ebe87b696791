package orders

import "github.com/commentgig/backend/internal/models"

// Progress buckets the sub-orders of one main order. The five counts always
// add up to the order's participant count.
type Progress struct {
	Completed     int `json:"completed"`
	InProgress    int `json:"in_progress"`
	PendingReview int `json:"pending_review"`
	Pending       int `json:"pending"`
	Rejected      int `json:"rejected"`
}

func (p Progress) Total() int {
	return p.Completed + p.InProgress + p.PendingReview + p.Pending + p.Rejected
}

// DeriveStatus is the only place a main order's status is computed.
// Precedence: all completed, then any pending review, then any processing or
// completed, then pending.
func DeriveStatus(subs []*models.SubOrder) models.OrderStatus {
	if len(subs) == 0 {
		return models.OrderPending
	}
	allCompleted := true
	var reviewing, started bool
	for _, s := range subs {
		switch s.Status {
		case models.SubOrderCompleted:
			started = true
		case models.SubOrderPendingReview:
			reviewing = true
		case models.SubOrderProcessing:
			started = true
		}
		if s.Status != models.SubOrderCompleted {
			allCompleted = false
		}
	}
	switch {
	case allCompleted:
		return models.OrderCompleted
	case reviewing:
		return models.OrderReviewing
	case started:
		return models.OrderProcessing
	default:
		return models.OrderPending
	}
}

// ComputeProgress counts processing sub-orders that were sent back by the
// publisher, and cancelled ones, as rejected.
func ComputeProgress(subs []*models.SubOrder) Progress {
	var p Progress
	for _, s := range subs {
		switch s.Status {
		case models.SubOrderCompleted:
			p.Completed++
		case models.SubOrderPendingReview:
			p.PendingReview++
		case models.SubOrderProcessing:
			if s.Rejected() {
				p.Rejected++
			} else {
				p.InProgress++
			}
		case models.SubOrderCancelled:
			p.Rejected++
		default:
			p.Pending++
		}
	}
	return p
}

var orderLabels = map[models.OrderStatus]string{
	models.OrderPending:    "Waiting for commenters",
	models.OrderProcessing: "In progress",
	models.OrderReviewing:  "Awaiting your review",
	models.OrderCompleted:  "Completed",
}

// StatusLabel is the display text for a derived order status. Every renderer
// uses it instead of keeping its own table.
func StatusLabel(s models.OrderStatus) string {
	if l, ok := orderLabels[s]; ok {
		return l
	}
	return string(s)
}

// SubOrderLabel is the display text for a sub-order; a processing sub-order
// that was sent back reads as rejected.
func SubOrderLabel(s *models.SubOrder) string {
	switch {
	case s.Rejected():
		return "Rejected, awaiting resubmission"
	case s.Status == models.SubOrderPending:
		return "Open"
	case s.Status == models.SubOrderProcessing:
		return "Claimed"
	case s.Status == models.SubOrderPendingReview:
		return "Under review"
	case s.Status == models.SubOrderCompleted:
		return "Completed"
	case s.Status == models.SubOrderCancelled:
		return "Cancelled"
	}
	return string(s.Status)
}
