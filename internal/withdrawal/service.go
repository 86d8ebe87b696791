// Package withdrawal turns available balance into payout requests and
// settles them.
package withdrawal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/events"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

type Service struct {
	store    repository.Store
	policy   Policy
	notifier events.Notifier
	log      *slog.Logger

	Now func() time.Time
}

func NewService(store repository.Store, policy Policy, notifier events.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, policy: policy, notifier: notifier, log: logger, Now: time.Now}
}

func (s *Service) Policy() Policy { return s.policy }

// RequestWithdrawal validates the request and reserves amount plus fee from
// the commenter's available balance in the same transaction that creates it.
func (s *Service) RequestWithdrawal(ctx context.Context, commenterID uuid.UUID, amount decimal.Decimal, method models.WithdrawalMethod) (*models.WithdrawalRequest, error) {
	if !amount.IsPositive() || !models.WholeCents(amount) {
		return nil, models.ErrInvalidAmount
	}
	if !method.Valid() {
		return nil, models.ErrInvalidMethod
	}
	if !s.policy.InRange(amount) {
		return nil, fmt.Errorf("%w: min %s, max %s", models.ErrAmountOutOfRange, s.policy.MinAmount.StringFixed(2), s.policy.MaxAmount.StringFixed(2))
	}
	now := s.Now()
	fee := s.policy.Fee(amount)
	req := &models.WithdrawalRequest{
		ID:          uuid.New(),
		CommenterID: commenterID,
		Amount:      amount,
		Fee:         fee,
		Method:      method,
		Status:      models.WithdrawalPending,
		RequestedAt: now,
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		acc, err := tx.Accounts().LockAccount(ctx, commenterID)
		if err != nil {
			return err
		}
		if acc.Available().LessThan(req.Total()) {
			return models.ErrInsufficientBalance
		}
		if !s.policy.Open(now) {
			return models.ErrWithdrawalWindowClosed
		}
		if err := tx.Withdrawals().CreateWithdrawal(ctx, req); err != nil {
			return err
		}
		acc.Reserved = acc.Reserved.Add(req.Total())
		acc.UpdatedAt = now
		return tx.Accounts().SaveAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("withdrawal requested", "withdrawal_id", req.ID, "commenter_id", commenterID, "amount", amount, "fee", fee)
	return req, nil
}

// Settle approves or rejects a pending request. Approval moves the
// reservation to withdrawn; rejection releases it. Both are terminal.
func (s *Service) Settle(ctx context.Context, requestID uuid.UUID, decision models.Decision, note string) (*models.WithdrawalRequest, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return nil, models.ErrInvalidDecision
	}
	now := s.Now()
	var req *models.WithdrawalRequest
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.Withdrawals().LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return models.ErrAlreadyProcessed
		}
		acc, err := tx.Accounts().LockAccount(ctx, req.CommenterID)
		if err != nil {
			return err
		}
		acc.Reserved = acc.Reserved.Sub(req.Total())
		if decision == models.DecisionApprove {
			req.Status = models.WithdrawalApproved
			acc.Withdrawn = acc.Withdrawn.Add(req.Total())
		} else {
			req.Status = models.WithdrawalRejected
		}
		req.Note = note
		req.ProcessedAt = &now
		acc.UpdatedAt = now
		if err := tx.Withdrawals().UpdateWithdrawal(ctx, req); err != nil {
			return err
		}
		return tx.Accounts().SaveAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("withdrawal settled", "withdrawal_id", req.ID, "commenter_id", req.CommenterID, "status", req.Status)
	s.notifier.Notify(ctx, events.New(events.WithdrawalSettled, req.CommenterID, now, req))
	return req, nil
}

func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.Withdrawals().Withdrawal(ctx, requestID)
		return err
	})
	return req, err
}

func (s *Service) ListByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.WithdrawalRequest, error) {
	var list []*models.WithdrawalRequest
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Withdrawals().WithdrawalsByCommenter(ctx, commenterID)
		return err
	})
	return list, err
}

// ListPending is the settlement queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*models.WithdrawalRequest, error) {
	var list []*models.WithdrawalRequest
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Withdrawals().WithdrawalsByStatus(ctx, models.WithdrawalPending)
		return err
	})
	return list, err
}
