package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EarningKind string

const (
	EarningTask       EarningKind = "task"
	EarningCommission EarningKind = "commission"
)

type EarningStatus string

const (
	EarningProcessing EarningStatus = "processing"
	EarningCompleted  EarningStatus = "completed"
)

// Commission records the referral cut attached to a task credit.
type Commission struct {
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	RecipientID uuid.UUID       `json:"recipient_id"`
}

// EarningsRecord is append-only.
type EarningsRecord struct {
	ID               uuid.UUID       `json:"id"`
	CommenterID      uuid.UUID       `json:"commenter_id"`
	SourceSubOrderID uuid.UUID       `json:"source_sub_order_id"`
	Kind             EarningKind     `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	Commission       *Commission     `json:"commission,omitempty"`
	Status           EarningStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}
