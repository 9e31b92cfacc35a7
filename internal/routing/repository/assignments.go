package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AssignmentSource records which flow produced an ownership change.
type AssignmentSource string

const (
	SourceRouting  AssignmentSource = "ROUTING"
	SourceSlaPond  AssignmentSource = "SLA_POND"
	SourceApproval AssignmentSource = "APPROVAL"
)

// Assignment is one lead-ownership row. An open row has a NULL released_at;
// at most one open row exists per lead.
type Assignment struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	LeadID       uuid.UUID
	AgentID      *uuid.UUID
	TeamID       *uuid.UUID
	RuleID       *uuid.UUID
	RouteEventID *uuid.UUID
	Source       AssignmentSource
	CreatedAt    time.Time
	ReleasedAt   *time.Time
}

// InsertAssignment releases any open assignment for the lead and writes the
// new one; both statements run on db so the caller's transaction keeps the
// swap atomic.
func (r *Repository) InsertAssignment(ctx context.Context, db DB, a Assignment) (uuid.UUID, error) {
	if _, err := db.Exec(ctx, `
		UPDATE lead_assignments
		SET released_at = now()
		WHERE tenant_id = $1 AND lead_id = $2 AND released_at IS NULL`,
		a.TenantID, a.LeadID); err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err := db.QueryRow(ctx, `
		INSERT INTO lead_assignments (tenant_id, lead_id, assigned_agent_id, team_id,
			rule_id, route_event_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		a.TenantID, a.LeadID, a.AgentID, a.TeamID,
		a.RuleID, a.RouteEventID, string(a.Source),
	).Scan(&id)
	return id, err
}

// ActiveAssignment returns the lead's open assignment, or nil when unowned.
func (r *Repository) ActiveAssignment(ctx context.Context, tenantID, leadID uuid.UUID) (*Assignment, error) {
	var a Assignment
	var source string
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, lead_id, assigned_agent_id, team_id, rule_id,
		       route_event_id, source, created_at, released_at
		FROM lead_assignments
		WHERE tenant_id = $1 AND lead_id = $2 AND released_at IS NULL`,
		tenantID, leadID,
	).Scan(&a.ID, &a.TenantID, &a.LeadID, &a.AgentID, &a.TeamID, &a.RuleID,
		&a.RouteEventID, &source, &a.CreatedAt, &a.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Source = AssignmentSource(source)
	return &a, nil
}

// CursorForUpdate row-locks the team's round-robin cursor for the rest of
// the transaction and returns the last assigned agent. The row is created on
// first use so the lock always has something to hold.
func (r *Repository) CursorForUpdate(ctx context.Context, db DB, tenantID, teamID uuid.UUID) (*uuid.UUID, error) {
	if _, err := db.Exec(ctx, `
		INSERT INTO routing_team_cursors (tenant_id, team_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, team_id) DO NOTHING`,
		tenantID, teamID); err != nil {
		return nil, err
	}

	var lastAgentID *uuid.UUID
	err := db.QueryRow(ctx, `
		SELECT last_agent_id
		FROM routing_team_cursors
		WHERE tenant_id = $1 AND team_id = $2
		FOR UPDATE`,
		tenantID, teamID,
	).Scan(&lastAgentID)
	if err != nil {
		return nil, err
	}
	return lastAgentID, nil
}

// AdvanceCursor points the team's rotation at the agent who just received a
// lead. Must run in the same transaction as the matching CursorForUpdate.
func (r *Repository) AdvanceCursor(ctx context.Context, db DB, tenantID, teamID, agentID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE routing_team_cursors
		SET last_agent_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND team_id = $2`,
		tenantID, teamID, agentID)
	return err
}
