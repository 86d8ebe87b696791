package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commentgig/backend/internal/models"
)

type WithdrawalRepo struct {
	q pgx.Tx
}

var _ Withdrawals = (*WithdrawalRepo)(nil)

const withdrawalColumns = `id, commenter_id, amount, fee, method, status, note, requested_at, processed_at`

func (r *WithdrawalRepo) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO withdrawal_requests (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, w.ID, w.CommenterID, w.Amount, w.Fee, w.Method, w.Status, w.Note, w.RequestedAt, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal request: %w", err)
	}
	return nil
}

func (r *WithdrawalRepo) LockWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.one(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *WithdrawalRepo) Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.one(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
}

func (r *WithdrawalRepo) UpdateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	_, err := r.q.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $2, note = $3, processed_at = $4 WHERE id = $1
	`, w.ID, w.Status, w.Note, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update withdrawal request: %w", err)
	}
	return nil
}

func (r *WithdrawalRepo) WithdrawalsByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.WithdrawalRequest, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE commenter_id = $1 ORDER BY seq DESC`, commenterID)
}

func (r *WithdrawalRepo) WithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.WithdrawalRequest, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY seq`, status)
}

func (r *WithdrawalRepo) one(ctx context.Context, query string, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select withdrawal request: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepo) list(ctx context.Context, query string, args ...any) ([]*models.WithdrawalRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select withdrawal requests: %w", err)
	}
	defer rows.Close()
	var list []*models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal request: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := row.Scan(&w.ID, &w.CommenterID, &w.Amount, &w.Fee, &w.Method, &w.Status, &w.Note,
		&w.RequestedAt, &w.ProcessedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
