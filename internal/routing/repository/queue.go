package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrQueueItemNotFound = errors.New("approval queue item not found")

const queueColumns = `id, tenant_id, lead_id, route_event_id, status,
	lead_summary, ranked_candidates, resolved_by, approved_agent_id,
	resolved_at, created_at`

func scanQueueItem(row pgx.Row) (domain.ApprovalQueueItem, error) {
	var item domain.ApprovalQueueItem
	var status string
	var summary, ranked []byte
	err := row.Scan(&item.ID, &item.TenantID, &item.LeadID, &item.RouteEventID,
		&status, &summary, &ranked, &item.ResolvedBy, &item.ApprovedAgentID,
		&item.ResolvedAt, &item.CreatedAt)
	if err != nil {
		return domain.ApprovalQueueItem{}, err
	}
	item.Status = domain.QueueStatus(status)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &item.LeadSummary); err != nil {
			return domain.ApprovalQueueItem{}, fmt.Errorf("decode lead summary: %w", err)
		}
	}
	if len(ranked) > 0 {
		if err := json.Unmarshal(ranked, &item.RankedCandidates); err != nil {
			return domain.ApprovalQueueItem{}, fmt.Errorf("decode ranked candidates: %w", err)
		}
	}
	return item, nil
}

// InsertQueueItem stages a decision for broker review; db is the assign
// transaction so the queue entry and its route event commit together.
func (r *Repository) InsertQueueItem(ctx context.Context, db DB, item *domain.ApprovalQueueItem) error {
	summary, err := json.Marshal(item.LeadSummary)
	if err != nil {
		return fmt.Errorf("marshal lead summary: %w", err)
	}
	ranked, err := json.Marshal(item.RankedCandidates)
	if err != nil {
		return fmt.Errorf("marshal ranked candidates: %w", err)
	}

	return db.QueryRow(ctx, `
		INSERT INTO approval_queue_items (tenant_id, lead_id, route_event_id,
			status, lead_summary, ranked_candidates)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)
		RETURNING id, created_at`,
		item.TenantID, item.LeadID, item.RouteEventID, summary, ranked,
	).Scan(&item.ID, &item.CreatedAt)
}

// QueuePage is a keyset-paginated slice of the approval queue, oldest first
// so brokers review in arrival order.
type QueuePage struct {
	Items      []domain.ApprovalQueueItem
	NextCursor *uuid.UUID
}

func (r *Repository) ListQueueItems(ctx context.Context, tenantID uuid.UUID, status domain.QueueStatus, cursor *uuid.UUID, limit int) (QueuePage, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + queueColumns + ` FROM approval_queue_items WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if cursor != nil {
		args = append(args, *cursor)
		query += fmt.Sprintf(` AND (created_at, id) > (
			SELECT created_at, id FROM approval_queue_items WHERE id = $%d)`, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return QueuePage{}, err
	}
	defer rows.Close()

	items := make([]domain.ApprovalQueueItem, 0, limit)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return QueuePage{}, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return QueuePage{}, rows.Err()
	}

	page := QueuePage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// GetQueueItemForUpdate row-locks the entry for the rest of the transaction
// so concurrent resolutions of the same item serialize.
func (r *Repository) GetQueueItemForUpdate(ctx context.Context, db DB, tenantID, id uuid.UUID) (domain.ApprovalQueueItem, error) {
	row := db.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM approval_queue_items
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`, id, tenantID)
	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ApprovalQueueItem{}, ErrQueueItemNotFound
	}
	return item, err
}

// ResolveQueueItem moves a PENDING entry to its terminal status. Returns
// false when the entry was already resolved.
func (r *Repository) ResolveQueueItem(ctx context.Context, db DB, id uuid.UUID, status domain.QueueStatus, resolvedBy uuid.UUID, approvedAgentID *uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE approval_queue_items
		SET status = $2, resolved_by = $3, approved_agent_id = $4, resolved_at = $5
		WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), resolvedBy, approvedAgentID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireCompeting expires every other PENDING entry for the same lead once
// one entry is resolved, so a lead never gets two approved assignments.
func (r *Repository) ExpireCompeting(ctx context.Context, db DB, tenantID, leadID, exceptID uuid.UUID, at time.Time) (int, error) {
	tag, err := db.Exec(ctx, `
		UPDATE approval_queue_items
		SET status = 'EXPIRED', resolved_at = $4
		WHERE tenant_id = $1 AND lead_id = $2 AND id <> $3 AND status = 'PENDING'`,
		tenantID, leadID, exceptID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
