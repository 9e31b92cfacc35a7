// Package directory exposes the agent/team roster read model consumed by the
// routing core: agents, team memberships, and recent activity aggregates.
// The routing core never writes through this package.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Agent is one roster entry scoped to a tenant.
type Agent struct {
	ID             uuid.UUID
	DisplayName    string
	CapacityTarget int
	ActivePipeline int
	PrimaryTeamID  *uuid.UUID
	Tags           []string
	Languages      []string
	Specialties    []string
}

// Membership links an agent to a team. CreatedAt drives round-robin ordering.
type Membership struct {
	AgentID   uuid.UUID
	TeamID    uuid.UUID
	Role      string
	CreatedAt *time.Time
}

// Activity aggregates an agent's recent tour and lead history.
type Activity struct {
	AgentID           uuid.UUID
	KeptAppointments  int
	TotalAppointments int
	BuyerLeads        int
	SellerLeads       int
	TourCities        []string
	TourStates        []string
	MinTourPriceCents *int64
	MaxTourPriceCents *int64
}

// AgentRecord is the merged roster view for one agent, assembled through
// named constructors rather than ad hoc map merges.
type AgentRecord struct {
	Agent       Agent
	Memberships []Membership
	Activity    Activity
}

// NewAgentRecord merges the per-source rows for a single agent.
func NewAgentRecord(agent Agent, memberships []Membership, activity Activity) AgentRecord {
	activity.AgentID = agent.ID
	return AgentRecord{
		Agent:       agent,
		Memberships: memberships,
		Activity:    activity,
	}
}
