package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentSnapshot is the canonical per-agent view derived fresh for every
// decision. It is never cached beyond the duration of one assign call.
type AgentSnapshot struct {
	AgentID        uuid.UUID
	DisplayName    string
	CapacityTarget int
	ActivePipeline int
	GeographyFit   float64
	PriceBandFit   float64
	KeptApptRate   float64
	LeadTypeFit    float64
	ConsentReady   bool
	MessagingReady bool
	PrimaryTeamID  *uuid.UUID
}

// TeamMembership links a candidate to a team. CreatedAt orders round-robin
// rotation; a nil CreatedAt sorts last.
type TeamMembership struct {
	TeamID    uuid.UUID
	Role      string
	CreatedAt *time.Time
}

// CandidateSnapshot wraps an AgentSnapshot with the derived routing inputs:
// remaining capacity, hard gating reasons, and the attributes agent filters
// match on. Gating reasons are never bypassed by filter relaxation.
type CandidateSnapshot struct {
	Agent             AgentSnapshot
	CapacityRemaining int
	GatingReasons     []string
	Memberships       []TeamMembership
	Tags              []string
	Languages         []string
	Specialties       []string
}

// NewCandidateSnapshot is the single constructor for candidate snapshots so
// that the capacity clamp and gating derivation live in one place.
func NewCandidateSnapshot(agent AgentSnapshot, memberships []TeamMembership, tags, languages, specialties []string) CandidateSnapshot {
	remaining := agent.CapacityTarget - agent.ActivePipeline
	if remaining < 0 {
		remaining = 0
	}

	var gating []string
	if !agent.ConsentReady {
		gating = append(gating, ReasonConsentNotGranted)
	}
	if !agent.MessagingReady {
		gating = append(gating, ReasonMessagingNotReady)
	}

	return CandidateSnapshot{
		Agent:             agent,
		CapacityRemaining: remaining,
		GatingReasons:     gating,
		Memberships:       memberships,
		Tags:              tags,
		Languages:         languages,
		Specialties:       specialties,
	}
}

// Gated reports whether the candidate carries any hard disqualification.
func (c CandidateSnapshot) Gated() bool {
	return len(c.GatingReasons) > 0
}

// MembershipOf returns the candidate's membership in the given team.
func (c CandidateSnapshot) MembershipOf(teamID uuid.UUID) (TeamMembership, bool) {
	for _, m := range c.Memberships {
		if m.TeamID == teamID {
			return m, true
		}
	}
	return TeamMembership{}, false
}

// HasAttribute reports whether the candidate carries the given tag.
func (c CandidateSnapshot) HasAttribute(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
