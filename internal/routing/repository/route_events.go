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

var ErrRouteEventNotFound = errors.New("route event not found")

const routeEventColumns = `id, tenant_id, lead_id, rule_id, mode,
	assigned_agent_id, fallback_team_id, used_fallback,
	reason_codes, considered, condition_checks,
	first_touch_at, appointment_kept_at, breached_at, breach_reasons,
	created_at`

// InsertRouteEvent writes the audit record; inside the assign flow db is the
// commit transaction.
func (r *Repository) InsertRouteEvent(ctx context.Context, db DB, ev *domain.RouteEvent) error {
	considered, err := json.Marshal(ev.Considered)
	if err != nil {
		return fmt.Errorf("marshal considered: %w", err)
	}
	checks, err := json.Marshal(ev.ConditionChecks)
	if err != nil {
		return fmt.Errorf("marshal condition checks: %w", err)
	}

	return db.QueryRow(ctx, `
		INSERT INTO route_events (tenant_id, lead_id, rule_id, mode,
			assigned_agent_id, fallback_team_id, used_fallback,
			reason_codes, considered, condition_checks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		ev.TenantID, ev.LeadID, ev.RuleID, string(ev.Mode),
		ev.AssignedAgentID, ev.FallbackTeamID, ev.UsedFallback,
		ev.ReasonCodes, considered, checks,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func scanRouteEvent(row pgx.Row) (domain.RouteEvent, error) {
	var ev domain.RouteEvent
	var mode string
	var considered, checks []byte
	err := row.Scan(&ev.ID, &ev.TenantID, &ev.LeadID, &ev.RuleID, &mode,
		&ev.AssignedAgentID, &ev.FallbackTeamID, &ev.UsedFallback,
		&ev.ReasonCodes, &considered, &checks,
		&ev.FirstTouchAt, &ev.AppointmentKeptAt, &ev.BreachedAt, &ev.BreachReasons,
		&ev.CreatedAt)
	if err != nil {
		return domain.RouteEvent{}, err
	}
	ev.Mode = domain.RuleMode(mode)
	if len(considered) > 0 {
		if err := json.Unmarshal(considered, &ev.Considered); err != nil {
			return domain.RouteEvent{}, fmt.Errorf("decode considered: %w", err)
		}
	}
	if len(checks) > 0 {
		if err := json.Unmarshal(checks, &ev.ConditionChecks); err != nil {
			return domain.RouteEvent{}, fmt.Errorf("decode condition checks: %w", err)
		}
	}
	return ev, nil
}

func (r *Repository) GetRouteEvent(ctx context.Context, tenantID, id uuid.UUID) (domain.RouteEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+routeEventColumns+`
		FROM route_events
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	ev, err := scanRouteEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RouteEvent{}, ErrRouteEventNotFound
	}
	return ev, err
}

// RouteEventPage is a keyset-paginated slice of the audit log, newest first.
type RouteEventPage struct {
	Events     []domain.RouteEvent
	NextCursor *uuid.UUID
}

// ListRouteEvents pages the tenant's audit log. A non-nil leadID narrows to
// one lead; cursor is the id of the last event on the previous page.
func (r *Repository) ListRouteEvents(ctx context.Context, tenantID uuid.UUID, leadID, cursor *uuid.UUID, limit int) (RouteEventPage, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + routeEventColumns + ` FROM route_events WHERE tenant_id = $1`
	args := []any{tenantID}

	if leadID != nil {
		args = append(args, *leadID)
		query += fmt.Sprintf(" AND lead_id = $%d", len(args))
	}
	if cursor != nil {
		args = append(args, *cursor)
		query += fmt.Sprintf(` AND (created_at, id) < (
			SELECT created_at, id FROM route_events WHERE id = $%d)`, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return RouteEventPage{}, err
	}
	defer rows.Close()

	events := make([]domain.RouteEvent, 0, limit)
	for rows.Next() {
		ev, err := scanRouteEvent(rows)
		if err != nil {
			return RouteEventPage{}, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return RouteEventPage{}, rows.Err()
	}

	page := RouteEventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		last := page.Events[limit-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// StampBreach appends a breach reason to the event and sets breached_at on
// first breach. Appending twice for the same reason is prevented by the
// timer-side PENDING guard, not here.
func (r *Repository) StampBreach(ctx context.Context, db DB, eventID uuid.UUID, reason string, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE route_events
		SET breach_reasons = array_append(breach_reasons, $2),
		    breached_at = COALESCE(breached_at, $3)
		WHERE id = $1`, eventID, reason, at)
	return err
}

// StampFirstTouch records the first-touch instant, first writer wins.
func (r *Repository) StampFirstTouch(ctx context.Context, db DB, eventID uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE route_events
		SET first_touch_at = COALESCE(first_touch_at, $2)
		WHERE id = $1`, eventID, at)
	return err
}

// StampAppointmentKept records the kept-appointment instant, first writer wins.
func (r *Repository) StampAppointmentKept(ctx context.Context, db DB, eventID uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE route_events
		SET appointment_kept_at = COALESCE(appointment_kept_at, $2)
		WHERE id = $1`, eventID, at)
	return err
}
