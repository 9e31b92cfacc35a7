package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activityWindow bounds how far back tour/lead history counts toward fit.
const activityWindow = 90 * 24 * time.Hour

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Roster returns the merged roster for a tenant. A tenant with no agents
// yields an empty slice, not an error; the decision engine treats that as
// "no candidates".
func (r *Repository) Roster(ctx context.Context, tenantID uuid.UUID) ([]AgentRecord, error) {
	agents, err := r.listAgents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return []AgentRecord{}, nil
	}

	memberships, err := r.listMemberships(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	activity, err := r.listActivity(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	records := make([]AgentRecord, 0, len(agents))
	for _, agent := range agents {
		records = append(records, NewAgentRecord(agent, memberships[agent.ID], activity[agent.ID]))
	}
	return records, nil
}

func (r *Repository) listAgents(ctx context.Context, tenantID uuid.UUID) ([]Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.display_name, a.capacity_target, a.primary_team_id,
		       a.tags, a.languages, a.specialties,
		       COALESCE(p.active_count, 0) AS active_pipeline
		FROM agents a
		LEFT JOIN (
			SELECT assigned_agent_id, COUNT(*) AS active_count
			FROM lead_assignments
			WHERE tenant_id = $1 AND released_at IS NULL AND assigned_agent_id IS NOT NULL
			GROUP BY assigned_agent_id
		) p ON p.assigned_agent_id = a.id
		WHERE a.tenant_id = $1 AND a.is_active = true
		ORDER BY a.id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.ID, &agent.DisplayName, &agent.CapacityTarget,
			&agent.PrimaryTeamID, &agent.Tags, &agent.Languages, &agent.Specialties,
			&agent.ActivePipeline); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (r *Repository) listMemberships(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID][]Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tm.agent_id, tm.team_id, tm.role, tm.created_at
		FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		WHERE t.tenant_id = $1
		ORDER BY tm.created_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make(map[uuid.UUID][]Membership)
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.AgentID, &m.TeamID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships[m.AgentID] = append(memberships[m.AgentID], m)
	}
	return memberships, rows.Err()
}

func (r *Repository) listActivity(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]Activity, error) {
	since := time.Now().Add(-activityWindow)

	rows, err := r.pool.Query(ctx, `
		SELECT agent_id,
		       COUNT(*) FILTER (WHERE status = 'KEPT')          AS kept,
		       COUNT(*) FILTER (WHERE status IN ('KEPT','NO_SHOW')) AS total,
		       COUNT(*) FILTER (WHERE lead_type = 'BUYER')      AS buyer_leads,
		       COUNT(*) FILTER (WHERE lead_type = 'SELLER')     AS seller_leads,
		       ARRAY_AGG(DISTINCT listing_city)  FILTER (WHERE listing_city IS NOT NULL)  AS cities,
		       ARRAY_AGG(DISTINCT listing_state) FILTER (WHERE listing_state IS NOT NULL) AS states,
		       MIN(listing_price_cents),
		       MAX(listing_price_cents)
		FROM agent_tours
		WHERE tenant_id = $1 AND scheduled_at >= $2
		GROUP BY agent_id
	`, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := make(map[uuid.UUID]Activity)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.AgentID, &a.KeptAppointments, &a.TotalAppointments,
			&a.BuyerLeads, &a.SellerLeads, &a.TourCities, &a.TourStates,
			&a.MinTourPriceCents, &a.MaxTourPriceCents); err != nil {
			return nil, err
		}
		activity[a.AgentID] = a
	}
	return activity, rows.Err()
}

// LastAssignedAgent returns the agent most recently assigned a lead for the
// given team, used as the round-robin cursor seed when no cursor row exists.
func (r *Repository) LastAssignedAgent(ctx context.Context, tenantID, teamID uuid.UUID) (*uuid.UUID, error) {
	var agentID *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT assigned_agent_id
		FROM lead_assignments
		WHERE tenant_id = $1 AND team_id = $2 AND assigned_agent_id IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, teamID).Scan(&agentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agentID, nil
}
