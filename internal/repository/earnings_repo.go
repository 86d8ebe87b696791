package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
)

type EarningsRepo struct {
	q pgx.Tx
}

var _ Earnings = (*EarningsRepo)(nil)

const earningColumns = `id, commenter_id, source_sub_order_id, kind, amount, commission_rate, commission_amount, commission_to, status, created_at`

func (r *EarningsRepo) CreateEarning(ctx context.Context, rec *models.EarningsRecord) error {
	var rate, amount decimal.NullDecimal
	var to *uuid.UUID
	if c := rec.Commission; c != nil {
		rate = decimal.NullDecimal{Decimal: c.Rate, Valid: true}
		amount = decimal.NullDecimal{Decimal: c.Amount, Valid: true}
		to = &c.RecipientID
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO earnings_records (`+earningColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.CommenterID, rec.SourceSubOrderID, rec.Kind, rec.Amount, rate, amount, to, rec.Status, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrDuplicateCredit
		}
		return fmt.Errorf("insert earnings record: %w", err)
	}
	return nil
}

func (r *EarningsRepo) EarningsByCommenter(ctx context.Context, commenterID uuid.UUID, kind models.EarningKind) ([]*models.EarningsRecord, error) {
	if kind == "" {
		return r.list(ctx, `SELECT `+earningColumns+` FROM earnings_records WHERE commenter_id = $1 ORDER BY seq DESC`, commenterID)
	}
	return r.list(ctx, `SELECT `+earningColumns+` FROM earnings_records WHERE commenter_id = $1 AND kind = $2 ORDER BY seq DESC`, commenterID, kind)
}

func (r *EarningsRepo) EarningsBySubOrder(ctx context.Context, subOrderID uuid.UUID) ([]*models.EarningsRecord, error) {
	return r.list(ctx, `SELECT `+earningColumns+` FROM earnings_records WHERE source_sub_order_id = $1 ORDER BY seq`, subOrderID)
}

func (r *EarningsRepo) list(ctx context.Context, query string, args ...any) ([]*models.EarningsRecord, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select earnings: %w", err)
	}
	defer rows.Close()
	var list []*models.EarningsRecord
	for rows.Next() {
		var rec models.EarningsRecord
		var rate, amount decimal.NullDecimal
		var to *uuid.UUID
		if err := rows.Scan(&rec.ID, &rec.CommenterID, &rec.SourceSubOrderID, &rec.Kind, &rec.Amount,
			&rate, &amount, &to, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan earnings record: %w", err)
		}
		if to != nil {
			rec.Commission = &models.Commission{Rate: rate.Decimal, Amount: amount.Decimal, RecipientID: *to}
		}
		list = append(list, &rec)
	}
	return list, rows.Err()
}
