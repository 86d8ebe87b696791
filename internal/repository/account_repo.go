package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
)

type AccountRepo struct {
	q pgx.Tx
}

var _ Accounts = (*AccountRepo)(nil)

func (r *AccountRepo) LockAccount(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO commenter_accounts (commenter_id) VALUES ($1) ON CONFLICT (commenter_id) DO NOTHING
	`, commenterID); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	a, err := scanAccount(r.q.QueryRow(ctx, `
		SELECT commenter_id, earned, reserved, withdrawn, updated_at
		FROM commenter_accounts WHERE commenter_id = $1 FOR UPDATE
	`, commenterID))
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) Account(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `
		SELECT commenter_id, earned, reserved, withdrawn, updated_at
		FROM commenter_accounts WHERE commenter_id = $1
	`, commenterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.CommenterAccount{CommenterID: commenterID, Earned: decimal.Zero, Reserved: decimal.Zero, Withdrawn: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) SaveAccount(ctx context.Context, a *models.CommenterAccount) error {
	_, err := r.q.Exec(ctx, `
		UPDATE commenter_accounts SET earned = $2, reserved = $3, withdrawn = $4, updated_at = $5
		WHERE commenter_id = $1
	`, a.CommenterID, a.Earned, a.Reserved, a.Withdrawn, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.CommenterAccount, error) {
	var a models.CommenterAccount
	if err := row.Scan(&a.CommenterID, &a.Earned, &a.Reserved, &a.Withdrawn, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
