package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
)

// Store is the single transaction boundary for the core. Every mutation runs
// inside InTx; a non-nil error from fn rolls back all of its writes.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
}

type Tx interface {
	Orders() Orders
	Earnings() Earnings
	Withdrawals() Withdrawals
	Accounts() Accounts
}

// Orders persists main orders and their sub-orders. Every sub-order mutation
// must be preceded by LockMainOrder on its parent in the same transaction.
type Orders interface {
	CreateMainOrder(ctx context.Context, o *models.MainOrder) error
	CreateSubOrder(ctx context.Context, s *models.SubOrder) error
	LockMainOrder(ctx context.Context, id uuid.UUID) (*models.MainOrder, error)
	MainOrder(ctx context.Context, id uuid.UUID) (*models.MainOrder, error)
	SubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error)
	// SubOrders returns the children of a main order in sequence order.
	SubOrders(ctx context.Context, mainOrderID uuid.UUID) ([]*models.SubOrder, error)
	// UpdateSubOrder saves s if its version still matches the stored one and
	// bumps s.Version. A mismatch yields models.ErrConcurrentUpdate.
	UpdateSubOrder(ctx context.Context, s *models.SubOrder) error
	ArchiveMainOrder(ctx context.Context, id uuid.UUID, at time.Time) error
	MainOrdersByPublisher(ctx context.Context, publisherID uuid.UUID) ([]*models.MainOrder, error)
	// OpenMainOrders lists unarchived orders that still have a pending sub-order, newest first.
	OpenMainOrders(ctx context.Context, limit int) ([]*models.MainOrder, error)
	SubOrdersByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.SubOrder, error)
	SubOrdersAwaitingReview(ctx context.Context, publisherID uuid.UUID) ([]*models.SubOrder, error)
	// ExpiredClaims lists processing sub-orders without proof claimed before cutoff.
	ExpiredClaims(ctx context.Context, cutoff time.Time, limit int) ([]*models.SubOrder, error)
}

type Earnings interface {
	// CreateEarning fails with models.ErrDuplicateCredit when a record of the
	// same kind already exists for the source sub-order.
	CreateEarning(ctx context.Context, r *models.EarningsRecord) error
	// EarningsByCommenter lists newest first; an empty kind means all kinds.
	EarningsByCommenter(ctx context.Context, commenterID uuid.UUID, kind models.EarningKind) ([]*models.EarningsRecord, error)
	EarningsBySubOrder(ctx context.Context, subOrderID uuid.UUID) ([]*models.EarningsRecord, error)
}

type Withdrawals interface {
	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	WithdrawalsByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.WithdrawalRequest, error)
	WithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.WithdrawalRequest, error)
}

type Accounts interface {
	// LockAccount returns the account row locked for update, creating an empty
	// one on first use.
	LockAccount(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error)
	// Account returns a zero-balance account when none exists yet.
	Account(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error)
	SaveAccount(ctx context.Context, a *models.CommenterAccount) error
}

// LockSubOrder locks the parent main order and then reads the sub-order, so
// the returned sub-order cannot change until the transaction ends.
func LockSubOrder(ctx context.Context, tx Tx, subOrderID uuid.UUID) (*models.MainOrder, *models.SubOrder, error) {
	sub, err := tx.Orders().SubOrder(ctx, subOrderID)
	if err != nil {
		return nil, nil, err
	}
	main, err := tx.Orders().LockMainOrder(ctx, sub.MainOrderID)
	if err != nil {
		return nil, nil, err
	}
	sub, err = tx.Orders().SubOrder(ctx, subOrderID)
	if err != nil {
		return nil, nil, err
	}
	return main, sub, nil
}
