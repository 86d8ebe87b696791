package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommenterAccount is the materialized balance row. Only the ledger and the
// withdrawal engine write it, always after locking it in the same transaction
// as the record that moves money.
type CommenterAccount struct {
	CommenterID uuid.UUID       `json:"commenter_id"`
	Earned      decimal.Decimal `json:"earned"`
	Reserved    decimal.Decimal `json:"reserved"`
	Withdrawn   decimal.Decimal `json:"withdrawn"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (a *CommenterAccount) Available() decimal.Decimal {
	return a.Earned.Sub(a.Reserved).Sub(a.Withdrawn)
}

// WholeCents reports whether d has no digits below the cent. Money columns
// are NUMERIC(14,2), so anything finer would be rounded on write.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
