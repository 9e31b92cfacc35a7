package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimerType distinguishes the two SLA timers a rule may declare.
type TimerType string

const (
	TimerFirstTouch      TimerType = "FIRST_TOUCH"
	TimerKeptAppointment TimerType = "KEPT_APPOINTMENT"
)

// TimerStatus is one-directional: PENDING moves to SATISFIED or BREACHED,
// never back. At most one PENDING timer exists per (tenant, lead, type).
type TimerStatus string

const (
	TimerPending   TimerStatus = "PENDING"
	TimerSatisfied TimerStatus = "SATISFIED"
	TimerBreached  TimerStatus = "BREACHED"
)

// SlaTimer tracks a response-time obligation created at assignment time.
type SlaTimer struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	LeadID          uuid.UUID
	RouteEventID    uuid.UUID
	Type            TimerType
	Status          TimerStatus
	DueAt           time.Time
	SatisfiedAt     *time.Time
	BreachedAt      *time.Time
	RuleID          *uuid.UUID
	AssignedAgentID *uuid.UUID
	PondTeamID      *uuid.UUID
	CreatedAt       time.Time
}

// BreachReason maps a timer type to its breach reason code.
func (t SlaTimer) BreachReason() string {
	if t.Type == TimerKeptAppointment {
		return ReasonSlaKeptApptBreach
	}
	return ReasonSlaFirstTouchBreach
}

// PondEligible reports whether a breach of this timer moves the lead into a
// pond. Any timer type qualifies; only the rule's pond declaration gates it.
func (t SlaTimer) PondEligible() bool {
	return t.PondTeamID != nil
}
