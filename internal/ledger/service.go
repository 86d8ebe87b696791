// Package ledger records commenter earnings and keeps the materialized
// balance of each commenter consistent with them.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

// Filter selects which records History returns.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterTask       Filter = "task"
	FilterCommission Filter = "commission"
)

func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterTask, FilterCommission:
		return Filter(s), nil
	}
	return "", fmt.Errorf("%w: unknown earnings filter %q", models.ErrValidation, s)
}

// ReconcileReport compares the stored account row with sums recomputed from
// the raw records.
type ReconcileReport struct {
	Stored   models.CommenterAccount `json:"stored"`
	Computed models.CommenterAccount `json:"computed"`
	Drift    bool                    `json:"drift"`
}

type Summary struct {
	Today          decimal.Decimal `json:"today"`
	Yesterday      decimal.Decimal `json:"yesterday"`
	Last7Days      decimal.Decimal `json:"last_7_days"`
	ThisMonth      decimal.Decimal `json:"this_month"`
	Total          decimal.Decimal `json:"total"`
	CompletedTasks int             `json:"completed_tasks"`
	Available      decimal.Decimal `json:"available"`
}

type Service struct {
	store  repository.Store
	policy CommissionPolicy
	log    *slog.Logger

	Now      func() time.Time
	Location *time.Location
}

func NewService(store repository.Store, policy CommissionPolicy, logger *slog.Logger) *Service {
	if policy == nil {
		policy = NoCommission{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, policy: policy, log: logger, Now: time.Now, Location: time.UTC}
}

// Credit appends the task record for a completed sub-order, plus the
// commission record the policy yields, and raises the affected balances. It
// runs inside the caller's transaction so the credit and the status change
// commit or roll back together.
func (s *Service) Credit(ctx context.Context, tx repository.Tx, sub *models.SubOrder) (*models.EarningsRecord, error) {
	if sub.CommenterID == nil {
		return nil, fmt.Errorf("%w: sub-order %s has no commenter", models.ErrInvalidTransition, sub.ID)
	}
	if sub.Status != models.SubOrderCompleted {
		return nil, fmt.Errorf("%w: sub-order %s is %s, not completed", models.ErrInvalidTransition, sub.ID, sub.Status)
	}
	commenterID := *sub.CommenterID
	now := s.Now()

	commission, err := s.policy.Commission(ctx, commenterID, sub.Reward)
	if err != nil {
		return nil, err
	}

	rec := &models.EarningsRecord{
		ID:               uuid.New(),
		CommenterID:      commenterID,
		SourceSubOrderID: sub.ID,
		Kind:             models.EarningTask,
		Amount:           sub.Reward,
		Commission:       commission,
		Status:           models.EarningCompleted,
		CreatedAt:        now,
	}
	if err := tx.Earnings().CreateEarning(ctx, rec); err != nil {
		return nil, err
	}

	credits := map[uuid.UUID]decimal.Decimal{commenterID: sub.Reward}
	if commission != nil {
		if err := tx.Earnings().CreateEarning(ctx, &models.EarningsRecord{
			ID:               uuid.New(),
			CommenterID:      commission.RecipientID,
			SourceSubOrderID: sub.ID,
			Kind:             models.EarningCommission,
			Amount:           commission.Amount,
			Status:           models.EarningCompleted,
			CreatedAt:        now,
		}); err != nil {
			return nil, err
		}
		credits[commission.RecipientID] = commission.Amount
	}

	// Lock accounts in deterministic order.
	ids := make([]uuid.UUID, 0, len(credits))
	for id := range credits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		acc, err := tx.Accounts().LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		acc.Earned = acc.Earned.Add(credits[id])
		acc.UpdatedAt = now
		if err := tx.Accounts().SaveAccount(ctx, acc); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (s *Service) Balance(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	var acc *models.CommenterAccount
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		acc, err = tx.Accounts().Account(ctx, commenterID)
		return err
	})
	return acc, err
}

// Reconcile recomputes earned, reserved and withdrawn from the earnings and
// withdrawal records and reports drift from the stored account row.
func (s *Service) Reconcile(ctx context.Context, commenterID uuid.UUID) (*ReconcileReport, error) {
	var report ReconcileReport
	err := s.store.View(ctx, func(tx repository.Tx) error {
		stored, err := tx.Accounts().Account(ctx, commenterID)
		if err != nil {
			return err
		}
		computed, err := recompute(ctx, tx, commenterID)
		if err != nil {
			return err
		}
		report.Stored = *stored
		report.Computed = *computed
		report.Drift = !stored.Earned.Equal(computed.Earned) ||
			!stored.Reserved.Equal(computed.Reserved) ||
			!stored.Withdrawn.Equal(computed.Withdrawn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report.Drift {
		s.log.Warn("ledger drift detected", "commenter_id", commenterID,
			"stored_available", report.Stored.Available(), "computed_available", report.Computed.Available())
	}
	return &report, nil
}

func recompute(ctx context.Context, tx repository.Tx, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	acc := &models.CommenterAccount{CommenterID: commenterID}
	recs, err := tx.Earnings().EarningsByCommenter(ctx, commenterID, "")
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Status == models.EarningCompleted {
			acc.Earned = acc.Earned.Add(r.Amount)
		}
	}
	reqs, err := tx.Withdrawals().WithdrawalsByCommenter(ctx, commenterID)
	if err != nil {
		return nil, err
	}
	for _, w := range reqs {
		switch w.Status {
		case models.WithdrawalPending:
			acc.Reserved = acc.Reserved.Add(w.Total())
		case models.WithdrawalApproved:
			acc.Withdrawn = acc.Withdrawn.Add(w.Total())
		}
	}
	return acc, nil
}

// History lists the commenter's records, newest first.
func (s *Service) History(ctx context.Context, commenterID uuid.UUID, filter Filter) ([]*models.EarningsRecord, error) {
	var kind models.EarningKind
	switch filter {
	case FilterTask:
		kind = models.EarningTask
	case FilterCommission:
		kind = models.EarningCommission
	}
	var recs []*models.EarningsRecord
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		recs, err = tx.Earnings().EarningsByCommenter(ctx, commenterID, kind)
		return err
	})
	return recs, err
}

// Summary totals completed earnings by calendar period in s.Location.
func (s *Service) Summary(ctx context.Context, commenterID uuid.UUID) (*Summary, error) {
	var recs []*models.EarningsRecord
	var acc *models.CommenterAccount
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if recs, err = tx.Earnings().EarningsByCommenter(ctx, commenterID, ""); err != nil {
			return err
		}
		acc, err = tx.Accounts().Account(ctx, commenterID)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.Now().In(s.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Location)
	yesterday := today.AddDate(0, 0, -1)
	weekStart := today.AddDate(0, 0, -6)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.Location)

	sum := &Summary{Available: acc.Available()}
	for _, r := range recs {
		if r.Status != models.EarningCompleted {
			continue
		}
		at := r.CreatedAt.In(s.Location)
		sum.Total = sum.Total.Add(r.Amount)
		if r.Kind == models.EarningTask {
			sum.CompletedTasks++
		}
		if !at.Before(today) {
			sum.Today = sum.Today.Add(r.Amount)
		} else if !at.Before(yesterday) {
			sum.Yesterday = sum.Yesterday.Add(r.Amount)
		}
		if !at.Before(weekStart) {
			sum.Last7Days = sum.Last7Days.Add(r.Amount)
		}
		if !at.Before(monthStart) {
			sum.ThisMonth = sum.ThisMonth.Add(r.Amount)
		}
	}
	return sum, nil
}
