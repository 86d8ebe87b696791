// Package submission drives a sub-order from claim to proof submission on
// behalf of a commenter.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

// ProofValidator checks a proof against its order's template.
type ProofValidator interface {
	ValidateProof(templateID string, proof models.Proof) error
}

type Service struct {
	store        repository.Store
	proofs       ProofValidator
	claimTimeout time.Duration
	log          *slog.Logger

	Now func() time.Time
}

func NewService(store repository.Store, proofs ProofValidator, claimTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, proofs: proofs, claimTimeout: claimTimeout, log: logger, Now: time.Now}
}

// Claim moves a pending sub-order to processing for commenterID. A commenter
// holds at most one open sub-order per main order.
func (s *Service) Claim(ctx context.Context, subOrderID, commenterID uuid.UUID) (*models.SubOrder, error) {
	var claimed *models.SubOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		main, sub, err := repository.LockSubOrder(ctx, tx, subOrderID)
		if err != nil {
			return err
		}
		claimed, err = s.claim(ctx, tx, main, sub, commenterID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sub-order claimed", "sub_order_id", claimed.ID, "order_id", claimed.MainOrderID, "commenter_id", commenterID)
	return claimed, nil
}

// ClaimNext claims the lowest-numbered pending sub-order of a main order.
func (s *Service) ClaimNext(ctx context.Context, mainOrderID, commenterID uuid.UUID) (*models.SubOrder, error) {
	var claimed *models.SubOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		main, err := tx.Orders().LockMainOrder(ctx, mainOrderID)
		if err != nil {
			return err
		}
		subs, err := tx.Orders().SubOrders(ctx, mainOrderID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if sub.Status == models.SubOrderPending {
				claimed, err = s.claim(ctx, tx, main, sub, commenterID)
				return err
			}
		}
		return fmt.Errorf("%w: no open sub-orders left", models.ErrAlreadyClaimed)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sub-order claimed", "sub_order_id", claimed.ID, "order_id", mainOrderID, "commenter_id", commenterID)
	return claimed, nil
}

func (s *Service) claim(ctx context.Context, tx repository.Tx, main *models.MainOrder, sub *models.SubOrder, commenterID uuid.UUID) (*models.SubOrder, error) {
	if main.ArchivedAt != nil {
		return nil, models.ErrOrderArchived
	}
	if sub.Status != models.SubOrderPending {
		return nil, models.ErrAlreadyClaimed
	}
	siblings, err := tx.Orders().SubOrders(ctx, main.ID)
	if err != nil {
		return nil, err
	}
	for _, other := range siblings {
		if other.HeldBy(commenterID) && (other.Status == models.SubOrderProcessing || other.Status == models.SubOrderPendingReview) {
			return nil, models.ErrDuplicateParticipation
		}
	}
	now := s.Now()
	sub.Status = models.SubOrderProcessing
	sub.CommenterID = &commenterID
	sub.ClaimedAt = &now
	if err := tx.Orders().UpdateSubOrder(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SubmitProof moves a claimed sub-order to pending review.
func (s *Service) SubmitProof(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof) (*models.SubOrder, error) {
	return s.submit(ctx, subOrderID, commenterID, proof, false)
}

// Resubmit is SubmitProof for a sub-order the publisher sent back.
func (s *Service) Resubmit(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof) (*models.SubOrder, error) {
	return s.submit(ctx, subOrderID, commenterID, proof, true)
}

func (s *Service) submit(ctx context.Context, subOrderID, commenterID uuid.UUID, proof models.Proof, resubmission bool) (*models.SubOrder, error) {
	var sub *models.SubOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		main, cur, err := repository.LockSubOrder(ctx, tx, subOrderID)
		if err != nil {
			return err
		}
		if !cur.HeldBy(commenterID) {
			return models.ErrNotOwner
		}
		switch cur.Status {
		case models.SubOrderProcessing:
		case models.SubOrderPendingReview:
			return models.ErrAlreadyAwaitingReview
		case models.SubOrderCompleted:
			return models.ErrAlreadyFinalized
		default:
			return models.ErrInvalidTransition
		}
		if resubmission && !cur.Rejected() {
			return models.ErrNotRejected
		}
		if err := s.proofs.ValidateProof(main.TemplateID, proof); err != nil {
			return err
		}
		now := s.Now()
		p := proof
		cur.Proof = &p
		cur.SubmittedAt = &now
		cur.Status = models.SubOrderPendingReview
		if err := tx.Orders().UpdateSubOrder(ctx, cur); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("proof submitted", "sub_order_id", sub.ID, "commenter_id", commenterID, "resubmission", resubmission)
	return sub, nil
}

// Cancel gives up a claim. Only allowed while no proof is under review.
func (s *Service) Cancel(ctx context.Context, subOrderID, commenterID uuid.UUID) (*models.SubOrder, error) {
	var sub *models.SubOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		_, cur, err := repository.LockSubOrder(ctx, tx, subOrderID)
		if err != nil {
			return err
		}
		if !cur.HeldBy(commenterID) {
			return models.ErrNotOwner
		}
		if cur.Status != models.SubOrderProcessing || cur.Proof != nil {
			return models.ErrInvalidTransition
		}
		cur.Status = models.SubOrderCancelled
		if err := tx.Orders().UpdateSubOrder(ctx, cur); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("claim cancelled", "sub_order_id", sub.ID, "commenter_id", commenterID)
	return sub, nil
}

// ReleaseExpired returns claims that have sat without proof for longer than
// the claim timeout to the pool. Sub-orders sent back by a publisher are left
// alone. It returns the number released.
func (s *Service) ReleaseExpired(ctx context.Context) (int, error) {
	if s.claimTimeout <= 0 {
		return 0, nil
	}
	cutoff := s.Now().Add(-s.claimTimeout)
	var expired []*models.SubOrder
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		expired, err = tx.Orders().ExpiredClaims(ctx, cutoff, 500)
		return err
	})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, candidate := range expired {
		err := s.store.InTx(ctx, func(tx repository.Tx) error {
			_, cur, err := repository.LockSubOrder(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-check under lock; the commenter may have submitted meanwhile.
			if cur.Status != models.SubOrderProcessing || cur.Proof != nil || cur.RejectCount > 0 ||
				cur.ClaimedAt == nil || !cur.ClaimedAt.Before(cutoff) {
				return errSkip
			}
			cur.Status = models.SubOrderPending
			cur.CommenterID = nil
			cur.ClaimedAt = nil
			return tx.Orders().UpdateSubOrder(ctx, cur)
		})
		switch {
		case err == nil:
			released++
			s.log.Info("expired claim released", "sub_order_id", candidate.ID, "order_id", candidate.MainOrderID)
		case errors.Is(err, errSkip):
		default:
			return released, fmt.Errorf("release sub-order %s: %w", candidate.ID, err)
		}
	}
	return released, nil
}

var errSkip = errors.New("skip")

// ListByCommenter returns the commenter's sub-orders, most recent claim
// first, optionally limited to one status.
func (s *Service) ListByCommenter(ctx context.Context, commenterID uuid.UUID, status models.SubOrderStatus) ([]*models.SubOrder, error) {
	var out []*models.SubOrder
	err := s.store.View(ctx, func(tx repository.Tx) error {
		list, err := tx.Orders().SubOrdersByCommenter(ctx, commenterID)
		if err != nil {
			return err
		}
		for _, sub := range list {
			if status == "" || sub.Status == status {
				out = append(out, sub)
			}
		}
		return nil
	})
	return out, err
}
