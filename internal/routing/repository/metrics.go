package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleStats aggregates outcomes per matched rule.
type RuleStats struct {
	RuleID      uuid.UUID `json:"ruleId"`
	Decisions   int       `json:"decisions"`
	Assignments int       `json:"assignments"`
	Breaches    int       `json:"breaches"`
}

// AgentStats aggregates outcomes per assigned agent.
type AgentStats struct {
	AgentID      uuid.UUID `json:"agentId"`
	Assignments  int       `json:"assignments"`
	KeptApptRate *float64  `json:"keptApptRate,omitempty"`
}

// Metrics aggregates routing outcomes for one tenant over a window.
type Metrics struct {
	Since                time.Time      `json:"since"`
	Decisions            int            `json:"decisions"`
	Assignments          int            `json:"assignments"`
	FallbackDecisions    int            `json:"fallbackDecisions"`
	AvgFirstTouchSeconds *float64       `json:"avgFirstTouchSeconds,omitempty"`
	ReasonCounts         map[string]int `json:"reasonCounts"`
	TimersBreached       map[string]int `json:"timersBreached"`
	TimersSatisfied      map[string]int `json:"timersSatisfied"`
	ApprovalsPending     int            `json:"approvalsPending"`
	PerRule              []RuleStats    `json:"perRule"`
	PerAgent             []AgentStats   `json:"perAgent"`
}

// GetMetrics computes the routing metrics snapshot. Reason counts unnest the
// per-event reason arrays, so one decision can contribute to several codes.
func (r *Repository) GetMetrics(ctx context.Context, tenantID uuid.UUID, since time.Time) (Metrics, error) {
	m := Metrics{
		Since:           since,
		ReasonCounts:    make(map[string]int),
		TimersBreached:  make(map[string]int),
		TimersSatisfied: make(map[string]int),
	}

	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE assigned_agent_id IS NOT NULL),
		       count(*) FILTER (WHERE used_fallback)
		FROM route_events
		WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&m.Decisions, &m.Assignments, &m.FallbackDecisions)
	if err != nil {
		return Metrics{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT reason, count(*)
		FROM route_events, unnest(reason_codes) AS reason
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY reason`,
		tenantID, since)
	if err != nil {
		return Metrics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return Metrics{}, err
		}
		m.ReasonCounts[reason] = count
	}
	if rows.Err() != nil {
		return Metrics{}, rows.Err()
	}

	timerRows, err := r.pool.Query(ctx, `
		SELECT type, status, count(*)
		FROM lead_sla_timers
		WHERE tenant_id = $1 AND created_at >= $2 AND status <> 'PENDING'
		GROUP BY type, status`,
		tenantID, since)
	if err != nil {
		return Metrics{}, err
	}
	defer timerRows.Close()
	for timerRows.Next() {
		var timerType, status string
		var count int
		if err := timerRows.Scan(&timerType, &status, &count); err != nil {
			return Metrics{}, err
		}
		if status == "BREACHED" {
			m.TimersBreached[timerType] = count
		} else {
			m.TimersSatisfied[timerType] = count
		}
	}
	if timerRows.Err() != nil {
		return Metrics{}, timerRows.Err()
	}

	err = r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM approval_queue_items
		WHERE tenant_id = $1 AND status = 'PENDING'`,
		tenantID,
	).Scan(&m.ApprovalsPending)
	if err != nil {
		return Metrics{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT EXTRACT(EPOCH FROM avg(first_touch_at - created_at))
		FROM route_events
		WHERE tenant_id = $1 AND created_at >= $2 AND first_touch_at IS NOT NULL`,
		tenantID, since,
	).Scan(&m.AvgFirstTouchSeconds)
	if err != nil {
		return Metrics{}, err
	}

	if m.PerRule, err = r.perRuleStats(ctx, tenantID, since); err != nil {
		return Metrics{}, err
	}
	if m.PerAgent, err = r.perAgentStats(ctx, tenantID, since); err != nil {
		return Metrics{}, err
	}

	return m, nil
}

func (r *Repository) perRuleStats(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]RuleStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.rule_id,
		       count(DISTINCT e.id),
		       count(DISTINCT e.id) FILTER (WHERE e.assigned_agent_id IS NOT NULL),
		       count(t.id) FILTER (WHERE t.status = 'BREACHED')
		FROM route_events e
		LEFT JOIN lead_sla_timers t ON t.route_event_id = e.id
		WHERE e.tenant_id = $1 AND e.created_at >= $2 AND e.rule_id IS NOT NULL
		GROUP BY e.rule_id
		ORDER BY count(DISTINCT e.id) DESC`,
		tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []RuleStats
	for rows.Next() {
		var s RuleStats
		if err := rows.Scan(&s.RuleID, &s.Decisions, &s.Assignments, &s.Breaches); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *Repository) perAgentStats(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]AgentStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.assigned_agent_id,
		       count(DISTINCT e.id),
		       CASE WHEN count(at.id) FILTER (WHERE at.status IN ('KEPT','NO_SHOW')) > 0
		            THEN count(at.id) FILTER (WHERE at.status = 'KEPT')::float
		                 / count(at.id) FILTER (WHERE at.status IN ('KEPT','NO_SHOW'))
		       END
		FROM route_events e
		LEFT JOIN agent_tours at
		  ON at.tenant_id = e.tenant_id
		 AND at.agent_id = e.assigned_agent_id
		 AND at.scheduled_at >= $2
		WHERE e.tenant_id = $1 AND e.created_at >= $2 AND e.assigned_agent_id IS NOT NULL
		GROUP BY e.assigned_agent_id
		ORDER BY count(DISTINCT e.id) DESC`,
		tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []AgentStats
	for rows.Next() {
		var s AgentStats
		if err := rows.Scan(&s.AgentID, &s.Assignments, &s.KeptApptRate); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
