package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalMethod string

const (
	MethodWechat WithdrawalMethod = "wechat"
	MethodAlipay WithdrawalMethod = "alipay"
	MethodBank   WithdrawalMethod = "bank"
)

func (m WithdrawalMethod) Valid() bool {
	switch m {
	case MethodWechat, MethodAlipay, MethodBank:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type WithdrawalRequest struct {
	ID          uuid.UUID        `json:"id"`
	CommenterID uuid.UUID        `json:"commenter_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         decimal.Decimal  `json:"fee"`
	Method      WithdrawalMethod `json:"method"`
	Status      WithdrawalStatus `json:"status"`
	Note        string           `json:"note,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// Total is what the request reserves from the commenter's balance.
func (w *WithdrawalRequest) Total() decimal.Decimal {
	return w.Amount.Add(w.Fee)
}
