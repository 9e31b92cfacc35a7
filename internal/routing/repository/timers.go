package repository

import (
	"context"
	"fmt"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const timerColumns = `id, tenant_id, lead_id, route_event_id, type, status,
	due_at, satisfied_at, breached_at, rule_id, assigned_agent_id,
	pond_team_id, created_at`

func scanTimer(row pgx.Row) (domain.SlaTimer, error) {
	var t domain.SlaTimer
	var timerType, status string
	err := row.Scan(&t.ID, &t.TenantID, &t.LeadID, &t.RouteEventID,
		&timerType, &status, &t.DueAt, &t.SatisfiedAt, &t.BreachedAt,
		&t.RuleID, &t.AssignedAgentID, &t.PondTeamID, &t.CreatedAt)
	if err != nil {
		return domain.SlaTimer{}, err
	}
	t.Type = domain.TimerType(timerType)
	t.Status = domain.TimerStatus(status)
	return t, nil
}

// InsertTimers writes the timers created by one assignment; db is the assign
// transaction so timers and assignment commit together.
func (r *Repository) InsertTimers(ctx context.Context, db DB, timers []domain.SlaTimer) error {
	for i := range timers {
		err := db.QueryRow(ctx, `
			INSERT INTO lead_sla_timers (tenant_id, lead_id, route_event_id,
				type, status, due_at, rule_id, assigned_agent_id, pond_team_id)
			VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7, $8)
			RETURNING id, created_at`,
			timers[i].TenantID, timers[i].LeadID, timers[i].RouteEventID,
			string(timers[i].Type), timers[i].DueAt,
			timers[i].RuleID, timers[i].AssignedAgentID, timers[i].PondTeamID,
		).Scan(&timers[i].ID, &timers[i].CreatedAt)
		if err != nil {
			return err
		}
		timers[i].Status = domain.TimerPending
	}
	return nil
}

// DueTimers returns PENDING timers past due at now, oldest first. A nil
// tenantID sweeps all tenants.
func (r *Repository) DueTimers(ctx context.Context, tenantID *uuid.UUID, now time.Time, limit int) ([]domain.SlaTimer, error) {
	if limit < 1 {
		limit = 200
	}

	query := `SELECT ` + timerColumns + `
		FROM lead_sla_timers
		WHERE status = 'PENDING' AND due_at <= $1`
	args := []any{now}
	if tenantID != nil {
		args = append(args, *tenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY due_at ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timers []domain.SlaTimer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, rows.Err()
}

// BreachTimer flips one timer from PENDING to BREACHED, stamps the breach on
// its route event, and, when the timer carries a pond fallback, moves the
// lead into the pond. Everything runs in one transaction; the guarded
// UPDATE makes concurrent sweeps idempotent, so at most one sweep ever
// observes the flip and places the pond assignment.
func (r *Repository) BreachTimer(ctx context.Context, timer domain.SlaTimer, now time.Time) (breached, pondPlaced bool, err error) {
	err = r.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE lead_sla_timers
			SET status = 'BREACHED', breached_at = $2
			WHERE id = $1 AND status = 'PENDING'`,
			timer.ID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		breached = true

		if err := r.StampBreach(ctx, tx, timer.RouteEventID, timer.BreachReason(), now); err != nil {
			return err
		}

		if timer.PondEligible() {
			if _, err := r.InsertAssignment(ctx, tx, Assignment{
				TenantID:     timer.TenantID,
				LeadID:       timer.LeadID,
				TeamID:       timer.PondTeamID,
				RuleID:       timer.RuleID,
				RouteEventID: &timer.RouteEventID,
				Source:       SourceSlaPond,
			}); err != nil {
				return err
			}
			pondPlaced = true
		}

		_, err = r.outbox.Insert(ctx, tx, outboxBreachParams(timer, pondPlaced, now))
		return err
	})
	if err != nil {
		return false, false, err
	}
	return breached, pondPlaced, nil
}

// SatisfyTimers resolves the lead's PENDING timers of one type, stamps the
// route event, and emits the satisfaction event. Returns the timers it
// actually flipped; an empty result means there was nothing pending, which is
// not an error.
func (r *Repository) SatisfyTimers(ctx context.Context, tenantID, leadID uuid.UUID, timerType domain.TimerType, at time.Time) ([]domain.SlaTimer, error) {
	var satisfied []domain.SlaTimer
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE lead_sla_timers
			SET status = 'SATISFIED', satisfied_at = $4
			WHERE tenant_id = $1 AND lead_id = $2 AND type = $3 AND status = 'PENDING'
			RETURNING `+timerColumns,
			tenantID, leadID, string(timerType), at)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTimer(rows)
			if err != nil {
				return err
			}
			satisfied = append(satisfied, t)
		}
		if rows.Err() != nil {
			return rows.Err()
		}
		rows.Close()

		for _, t := range satisfied {
			if timerType == domain.TimerFirstTouch {
				err = r.StampFirstTouch(ctx, tx, t.RouteEventID, at)
			} else {
				err = r.StampAppointmentKept(ctx, tx, t.RouteEventID, at)
			}
			if err != nil {
				return err
			}

			if _, err := r.outbox.Insert(ctx, tx, outboxSatisfyParams(t, at)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return satisfied, nil
}

// TimerPage is a keyset-paginated slice of SLA timers for the dashboard.
type TimerPage struct {
	Timers     []domain.SlaTimer
	NextCursor *uuid.UUID
}

// ListTimers pages the tenant's timers for the SLA dashboard, soonest due
// first. A non-empty status narrows the view.
func (r *Repository) ListTimers(ctx context.Context, tenantID uuid.UUID, status domain.TimerStatus, cursor *uuid.UUID, limit int) (TimerPage, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + timerColumns + ` FROM lead_sla_timers WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if cursor != nil {
		args = append(args, *cursor)
		query += fmt.Sprintf(` AND (due_at, id) > (
			SELECT due_at, id FROM lead_sla_timers WHERE id = $%d)`, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY due_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return TimerPage{}, err
	}
	defer rows.Close()

	timers := make([]domain.SlaTimer, 0, limit)
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return TimerPage{}, err
		}
		timers = append(timers, t)
	}
	if rows.Err() != nil {
		return TimerPage{}, rows.Err()
	}

	page := TimerPage{Timers: timers}
	if len(timers) > limit {
		page.Timers = timers[:limit]
		last := page.Timers[limit-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

func outboxBreachParams(t domain.SlaTimer, pondPlaced bool, at time.Time) outbox.InsertParams {
	return outbox.InsertParams{
		TenantID:  t.TenantID,
		EventName: events.NameSlaTimerBreached,
		Payload: map[string]any{
			"tenantId":        t.TenantID,
			"leadId":          t.LeadID,
			"timerId":         t.ID,
			"timerType":       t.Type,
			"routeEventId":    t.RouteEventID,
			"ruleId":          t.RuleID,
			"assignedAgentId": t.AssignedAgentID,
			"reason":          t.BreachReason(),
			"pondTeamId":      t.PondTeamID,
			"pondPlaced":      pondPlaced,
			"breachedAt":      at,
		},
	}
}

func outboxSatisfyParams(t domain.SlaTimer, at time.Time) outbox.InsertParams {
	return outbox.InsertParams{
		TenantID:  t.TenantID,
		EventName: events.NameSlaTimerSatisfied,
		Payload: map[string]any{
			"tenantId":     t.TenantID,
			"leadId":       t.LeadID,
			"timerId":      t.ID,
			"timerType":    t.Type,
			"routeEventId": t.RouteEventID,
			"satisfiedAt":  at,
		},
	}
}
