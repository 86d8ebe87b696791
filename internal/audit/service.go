// Package audit lets publishers approve or reject submitted proof. Approval
// and the earnings credit it triggers commit as one unit.
package audit

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/events"
	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

const maxNoteLength = 500

// Crediter posts earnings for a completed sub-order inside the caller's
// transaction.
type Crediter interface {
	Credit(ctx context.Context, tx repository.Tx, sub *models.SubOrder) (*models.EarningsRecord, error)
}

type Service struct {
	store    repository.Store
	ledger   Crediter
	notifier events.Notifier
	log      *slog.Logger

	Now func() time.Time
}

func NewService(store repository.Store, ledger Crediter, notifier events.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: ledger, notifier: notifier, log: logger, Now: time.Now}
}

type approvedPayload struct {
	SubOrderID  uuid.UUID              `json:"sub_order_id"`
	MainOrderID uuid.UUID              `json:"main_order_id"`
	Earning     *models.EarningsRecord `json:"earning"`
}

type rejectedPayload struct {
	SubOrderID  uuid.UUID `json:"sub_order_id"`
	MainOrderID uuid.UUID `json:"main_order_id"`
	Note        string    `json:"note"`
}

// Approve completes a sub-order under review and credits the commenter. If
// the credit fails the sub-order stays in pending review.
func (s *Service) Approve(ctx context.Context, subOrderID, publisherID uuid.UUID) (*models.EarningsRecord, error) {
	now := s.Now()
	var sub *models.SubOrder
	var rec *models.EarningsRecord
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		main, cur, err := repository.LockSubOrder(ctx, tx, subOrderID)
		if err != nil {
			return err
		}
		if main.PublisherID != publisherID {
			return models.ErrNotOwner
		}
		switch cur.Status {
		case models.SubOrderPendingReview:
		case models.SubOrderCompleted:
			return models.ErrAlreadyFinalized
		default:
			return models.ErrInvalidTransition
		}
		cur.Status = models.SubOrderCompleted
		cur.ReviewedAt = &now
		cur.RejectionNote = ""
		if err := tx.Orders().UpdateSubOrder(ctx, cur); err != nil {
			return err
		}
		if rec, err = s.ledger.Credit(ctx, tx, cur); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sub-order approved", "sub_order_id", sub.ID, "order_id", sub.MainOrderID,
		"commenter_id", rec.CommenterID, "amount", rec.Amount)
	s.notifier.Notify(ctx, events.New(events.SubOrderApproved, rec.CommenterID, now, approvedPayload{
		SubOrderID: sub.ID, MainOrderID: sub.MainOrderID, Earning: rec,
	}))
	return rec, nil
}

// Reject sends a sub-order back to its commenter with a note. The proof is
// cleared and no earnings are posted.
func (s *Service) Reject(ctx context.Context, subOrderID, publisherID uuid.UUID, note string) (*models.SubOrder, error) {
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, models.ErrNoteTooLong
	}
	now := s.Now()
	var sub *models.SubOrder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		main, cur, err := repository.LockSubOrder(ctx, tx, subOrderID)
		if err != nil {
			return err
		}
		if main.PublisherID != publisherID {
			return models.ErrNotOwner
		}
		switch cur.Status {
		case models.SubOrderPendingReview:
		case models.SubOrderCompleted:
			return models.ErrAlreadyFinalized
		default:
			return models.ErrInvalidTransition
		}
		cur.Status = models.SubOrderProcessing
		cur.Proof = nil
		cur.SubmittedAt = nil
		cur.ReviewedAt = &now
		cur.RejectionNote = note
		cur.RejectCount++
		if err := tx.Orders().UpdateSubOrder(ctx, cur); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sub-order rejected", "sub_order_id", sub.ID, "order_id", sub.MainOrderID, "reject_count", sub.RejectCount)
	if sub.CommenterID != nil {
		s.notifier.Notify(ctx, events.New(events.SubOrderRejected, *sub.CommenterID, now, rejectedPayload{
			SubOrderID: sub.ID, MainOrderID: sub.MainOrderID, Note: note,
		}))
	}
	return sub, nil
}

// ListPendingReview returns every sub-order awaiting this publisher's
// decision, oldest submission first.
func (s *Service) ListPendingReview(ctx context.Context, publisherID uuid.UUID) ([]*models.SubOrder, error) {
	var list []*models.SubOrder
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Orders().SubOrdersAwaitingReview(ctx, publisherID)
		return err
	})
	return list, err
}
