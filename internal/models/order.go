package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubOrderStatus string

const (
	SubOrderPending       SubOrderStatus = "pending"
	SubOrderProcessing    SubOrderStatus = "processing"
	SubOrderPendingReview SubOrderStatus = "pending_review"
	SubOrderCompleted     SubOrderStatus = "completed"
	SubOrderCancelled     SubOrderStatus = "cancelled"
)

// Terminal reports whether no further transition can leave the status.
func (s SubOrderStatus) Terminal() bool {
	return s == SubOrderCompleted || s == SubOrderCancelled
}

// OrderStatus is derived from the sub-order statuses and never stored.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderReviewing  OrderStatus = "reviewing"
	OrderCompleted  OrderStatus = "completed"
)

type MainOrder struct {
	ID              uuid.UUID       `json:"id"`
	TemplateID      string          `json:"template_id"`
	PublisherID     uuid.UUID       `json:"publisher_id"`
	MaxParticipants int             `json:"max_participants"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Budget          decimal.Decimal `json:"budget"`
	Requirements    string          `json:"requirements,omitempty"`
	SubOrderIDs     []uuid.UUID     `json:"sub_order_ids"`
	CreatedAt       time.Time       `json:"created_at"`
	ArchivedAt      *time.Time      `json:"archived_at,omitempty"`
}

// Proof holds finalized artifact references. Blobs never reach the core.
type Proof struct {
	ScreenshotRef string          `json:"screenshot_ref,omitempty"`
	ReviewLink    string          `json:"review_link,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func (p Proof) IsZero() bool {
	return p.ScreenshotRef == "" && p.ReviewLink == "" && len(p.Metadata) == 0
}

type SubOrder struct {
	ID            uuid.UUID       `json:"id"`
	MainOrderID   uuid.UUID       `json:"main_order_id"`
	Seq           int             `json:"seq"`
	CommenterID   *uuid.UUID      `json:"commenter_id,omitempty"`
	Status        SubOrderStatus  `json:"status"`
	Proof         *Proof          `json:"proof,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	RejectionNote string          `json:"rejection_note,omitempty"`
	RejectCount   int             `json:"reject_count"`
	Reward        decimal.Decimal `json:"reward"`
	Version       int             `json:"version"`
}

// HeldBy reports whether commenterID is the current claimant.
func (s *SubOrder) HeldBy(commenterID uuid.UUID) bool {
	return s.CommenterID != nil && *s.CommenterID == commenterID
}

// Rejected reports whether the sub-order is back in processing after a reject.
func (s *SubOrder) Rejected() bool {
	return s.Status == SubOrderProcessing && s.RejectCount > 0
}

// Clone returns a deep copy so stores can hand out values callers may mutate.
func (s *SubOrder) Clone() *SubOrder {
	cp := *s
	if s.CommenterID != nil {
		id := *s.CommenterID
		cp.CommenterID = &id
	}
	if s.Proof != nil {
		p := *s.Proof
		p.Metadata = append(json.RawMessage(nil), s.Proof.Metadata...)
		cp.Proof = &p
	}
	cp.ClaimedAt = cloneTime(s.ClaimedAt)
	cp.SubmittedAt = cloneTime(s.SubmittedAt)
	cp.ReviewedAt = cloneTime(s.ReviewedAt)
	return &cp
}

func (o *MainOrder) Clone() *MainOrder {
	cp := *o
	cp.SubOrderIDs = append([]uuid.UUID(nil), o.SubOrderIDs...)
	cp.ArchivedAt = cloneTime(o.ArchivedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
