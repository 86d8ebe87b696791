package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on a pgx pool. Row locks are taken with
// SELECT ... FOR UPDATE inside the transaction handed to fn.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PGStore) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)
	return fn(pgTx{tx: tx})
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Orders() Orders           { return &OrderRepo{q: t.tx} }
func (t pgTx) Earnings() Earnings       { return &EarningsRepo{q: t.tx} }
func (t pgTx) Withdrawals() Withdrawals { return &WithdrawalRepo{q: t.tx} }
func (t pgTx) Accounts() Accounts       { return &AccountRepo{q: t.tx} }
