package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commentgig/backend/internal/models"
)

// OrderRepo is the Postgres Orders implementation, bound to one transaction.
type OrderRepo struct {
	q pgx.Tx
}

var _ Orders = (*OrderRepo)(nil)

const mainOrderColumns = `id, template_id, publisher_id, max_participants, unit_price, budget, requirements, created_at, archived_at`

const subOrderColumns = `id, main_order_id, seq, commenter_id, status, screenshot_ref, review_link, proof_metadata,
	claimed_at, submitted_at, reviewed_at, rejection_note, reject_count, reward, version`

func (r *OrderRepo) CreateMainOrder(ctx context.Context, o *models.MainOrder) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO main_orders (id, template_id, publisher_id, max_participants, unit_price, budget, requirements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.TemplateID, o.PublisherID, o.MaxParticipants, o.UnitPrice, o.Budget, o.Requirements, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert main order: %w", err)
	}
	return nil
}

func (r *OrderRepo) CreateSubOrder(ctx context.Context, s *models.SubOrder) error {
	screenshot, link, meta := proofColumns(s.Proof)
	_, err := r.q.Exec(ctx, `
		INSERT INTO sub_orders (`+subOrderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, s.ID, s.MainOrderID, s.Seq, s.CommenterID, s.Status, screenshot, link, meta,
		s.ClaimedAt, s.SubmittedAt, s.ReviewedAt, s.RejectionNote, s.RejectCount, s.Reward, s.Version)
	if err != nil {
		return fmt.Errorf("insert sub-order: %w", err)
	}
	return nil
}

func (r *OrderRepo) LockMainOrder(ctx context.Context, id uuid.UUID) (*models.MainOrder, error) {
	return r.mainOrder(ctx, `SELECT `+mainOrderColumns+` FROM main_orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepo) MainOrder(ctx context.Context, id uuid.UUID) (*models.MainOrder, error) {
	return r.mainOrder(ctx, `SELECT `+mainOrderColumns+` FROM main_orders WHERE id = $1`, id)
}

func (r *OrderRepo) mainOrder(ctx context.Context, query string, id uuid.UUID) (*models.MainOrder, error) {
	o, err := scanMainOrder(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select main order: %w", err)
	}
	if err := r.loadSubOrderIDs(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) loadSubOrderIDs(ctx context.Context, o *models.MainOrder) error {
	rows, err := r.q.Query(ctx, `SELECT id FROM sub_orders WHERE main_order_id = $1 ORDER BY seq`, o.ID)
	if err != nil {
		return fmt.Errorf("select sub-order ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("collect sub-order ids: %w", err)
	}
	o.SubOrderIDs = ids
	return nil
}

func (r *OrderRepo) SubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error) {
	s, err := scanSubOrder(r.q.QueryRow(ctx, `SELECT `+subOrderColumns+` FROM sub_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSubOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select sub-order: %w", err)
	}
	return s, nil
}

func (r *OrderRepo) SubOrders(ctx context.Context, mainOrderID uuid.UUID) ([]*models.SubOrder, error) {
	return r.subOrders(ctx, `SELECT `+subOrderColumns+` FROM sub_orders WHERE main_order_id = $1 ORDER BY seq`, mainOrderID)
}

func (r *OrderRepo) UpdateSubOrder(ctx context.Context, s *models.SubOrder) error {
	screenshot, link, meta := proofColumns(s.Proof)
	tag, err := r.q.Exec(ctx, `
		UPDATE sub_orders
		SET commenter_id = $3, status = $4, screenshot_ref = $5, review_link = $6, proof_metadata = $7,
			claimed_at = $8, submitted_at = $9, reviewed_at = $10, rejection_note = $11, reject_count = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, s.ID, s.Version, s.CommenterID, s.Status, screenshot, link, meta,
		s.ClaimedAt, s.SubmittedAt, s.ReviewedAt, s.RejectionNote, s.RejectCount)
	if err != nil {
		return fmt.Errorf("update sub-order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConcurrentUpdate
	}
	s.Version++
	return nil
}

func (r *OrderRepo) ArchiveMainOrder(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE main_orders SET archived_at = $2 WHERE id = $1 AND archived_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("archive main order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrOrderArchived
	}
	return nil
}

func (r *OrderRepo) MainOrdersByPublisher(ctx context.Context, publisherID uuid.UUID) ([]*models.MainOrder, error) {
	rows, err := r.q.Query(ctx, `SELECT `+mainOrderColumns+` FROM main_orders WHERE publisher_id = $1 ORDER BY seq DESC`, publisherID)
	if err != nil {
		return nil, fmt.Errorf("select main orders: %w", err)
	}
	return r.collectMainOrders(ctx, rows)
}

func (r *OrderRepo) collectMainOrders(ctx context.Context, rows pgx.Rows) ([]*models.MainOrder, error) {
	defer rows.Close()
	var list []*models.MainOrder
	for rows.Next() {
		o, err := scanMainOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan main order: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for _, o := range list {
		if err := r.loadSubOrderIDs(ctx, o); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *OrderRepo) OpenMainOrders(ctx context.Context, limit int) ([]*models.MainOrder, error) {
	rows, err := r.q.Query(ctx, `SELECT `+mainOrderColumns+` FROM main_orders m
		WHERE archived_at IS NULL
		  AND EXISTS (SELECT 1 FROM sub_orders s WHERE s.main_order_id = m.id AND s.status = 'pending')
		ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select open main orders: %w", err)
	}
	return r.collectMainOrders(ctx, rows)
}

func (r *OrderRepo) SubOrdersByCommenter(ctx context.Context, commenterID uuid.UUID) ([]*models.SubOrder, error) {
	return r.subOrders(ctx, `SELECT `+subOrderColumns+` FROM sub_orders
		WHERE commenter_id = $1 ORDER BY claimed_at DESC NULLS LAST, seq`, commenterID)
}

func (r *OrderRepo) SubOrdersAwaitingReview(ctx context.Context, publisherID uuid.UUID) ([]*models.SubOrder, error) {
	return r.subOrders(ctx, `SELECT s.`+subOrderColumnsPrefixed+` FROM sub_orders s
		JOIN main_orders m ON m.id = s.main_order_id
		WHERE m.publisher_id = $1 AND s.status = 'pending_review'
		ORDER BY s.submitted_at`, publisherID)
}

func (r *OrderRepo) ExpiredClaims(ctx context.Context, cutoff time.Time, limit int) ([]*models.SubOrder, error) {
	return r.subOrders(ctx, `SELECT `+subOrderColumns+` FROM sub_orders
		WHERE status = 'processing' AND submitted_at IS NULL AND reject_count = 0 AND claimed_at < $1
		ORDER BY claimed_at LIMIT $2`, cutoff, limit)
}

func (r *OrderRepo) subOrders(ctx context.Context, query string, args ...any) ([]*models.SubOrder, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sub-orders: %w", err)
	}
	defer rows.Close()
	var list []*models.SubOrder
	for rows.Next() {
		s, err := scanSubOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sub-order: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

const subOrderColumnsPrefixed = `id, s.main_order_id, s.seq, s.commenter_id, s.status, s.screenshot_ref, s.review_link,
	s.proof_metadata, s.claimed_at, s.submitted_at, s.reviewed_at, s.rejection_note, s.reject_count, s.reward, s.version`

func scanMainOrder(row pgx.Row) (*models.MainOrder, error) {
	var o models.MainOrder
	err := row.Scan(&o.ID, &o.TemplateID, &o.PublisherID, &o.MaxParticipants, &o.UnitPrice, &o.Budget,
		&o.Requirements, &o.CreatedAt, &o.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanSubOrder(row pgx.Row) (*models.SubOrder, error) {
	var s models.SubOrder
	var screenshot, link *string
	var meta []byte
	err := row.Scan(&s.ID, &s.MainOrderID, &s.Seq, &s.CommenterID, &s.Status, &screenshot, &link, &meta,
		&s.ClaimedAt, &s.SubmittedAt, &s.ReviewedAt, &s.RejectionNote, &s.RejectCount, &s.Reward, &s.Version)
	if err != nil {
		return nil, err
	}
	if screenshot != nil || link != nil || meta != nil {
		p := &models.Proof{Metadata: json.RawMessage(meta)}
		if screenshot != nil {
			p.ScreenshotRef = *screenshot
		}
		if link != nil {
			p.ReviewLink = *link
		}
		s.Proof = p
	}
	return &s, nil
}

func proofColumns(p *models.Proof) (screenshot, link *string, meta []byte) {
	if p == nil {
		return nil, nil, nil
	}
	if p.ScreenshotRef != "" {
		screenshot = &p.ScreenshotRef
	}
	if p.ReviewLink != "" {
		link = &p.ReviewLink
	}
	if len(p.Metadata) > 0 {
		meta = p.Metadata
	}
	return screenshot, link, meta
}
