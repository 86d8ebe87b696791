package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
)

// CommissionPolicy decides whether a task credit carries a commission for a
// third party. A nil commission means none.
type CommissionPolicy interface {
	Commission(ctx context.Context, commenterID uuid.UUID, amount decimal.Decimal) (*models.Commission, error)
}

type NoCommission struct{}

func (NoCommission) Commission(context.Context, uuid.UUID, decimal.Decimal) (*models.Commission, error) {
	return nil, nil
}

// ReferralDirectory resolves who invited a user.
type ReferralDirectory interface {
	ReferrerOf(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
}

// ReferralCommission pays the inviter Rate of each task credit, rounded to
// cents. The commenter's own credit is not reduced.
type ReferralCommission struct {
	Rate      decimal.Decimal
	Referrals ReferralDirectory
}

func (p ReferralCommission) Commission(ctx context.Context, commenterID uuid.UUID, amount decimal.Decimal) (*models.Commission, error) {
	if !p.Rate.IsPositive() || !amount.IsPositive() {
		return nil, nil
	}
	referrer, ok, err := p.Referrals.ReferrerOf(ctx, commenterID)
	if err != nil {
		return nil, fmt.Errorf("resolve referrer: %w", err)
	}
	if !ok || referrer == commenterID {
		return nil, nil
	}
	cut := amount.Mul(p.Rate).Round(2)
	if !cut.IsPositive() {
		return nil, nil
	}
	return &models.Commission{Rate: p.Rate, Amount: cut, RecipientID: referrer}, nil
}

// StaticReferrals is an in-memory ReferralDirectory.
type StaticReferrals map[uuid.UUID]uuid.UUID

func (s StaticReferrals) ReferrerOf(_ context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	id, ok := s[userID]
	return id, ok, nil
}
