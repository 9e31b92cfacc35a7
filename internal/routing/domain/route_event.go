package domain

import (
	"time"

	"github.com/google/uuid"
)

// RouteEvent is the immutable audit record written for every routing
// decision, including no-match and approval-pool outcomes. Breach and
// satisfaction stamps are the only fields mutated after insert.
type RouteEvent struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	LeadID            uuid.UUID
	RuleID            *uuid.UUID
	Mode              RuleMode
	AssignedAgentID   *uuid.UUID
	FallbackTeamID    *uuid.UUID
	UsedFallback      bool
	ReasonCodes       []string
	Considered        []ConsideredCandidate
	ConditionChecks   []CheckResult
	FirstTouchAt      *time.Time
	AppointmentKeptAt *time.Time
	BreachedAt        *time.Time
	BreachReasons     []string
	CreatedAt         time.Time
}
