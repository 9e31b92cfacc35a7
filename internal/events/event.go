// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadrouter/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Routing Domain Events
// =============================================================================

// Event names, shared between in-process publication and the outbox rows the
// dispatcher relays.
const (
	NameLeadRouted        = "routing.lead.routed"
	NameSlaTimerBreached  = "routing.sla.breached"
	NameSlaTimerSatisfied = "routing.sla.satisfied"
	NameApprovalResolved  = "routing.approval.resolved"
)

// LeadRouted is published when a routing decision has been committed,
// whether it produced an agent assignment or a fallback placement.
type LeadRouted struct {
	BaseEvent
	TenantID        uuid.UUID  `json:"tenantId"`
	LeadID          uuid.UUID  `json:"leadId"`
	RouteEventID    uuid.UUID  `json:"routeEventId"`
	RuleID          *uuid.UUID `json:"ruleId,omitempty"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	FallbackTeamID  *uuid.UUID `json:"fallbackTeamId,omitempty"`
	UsedFallback    bool       `json:"usedFallback"`
	ReasonCodes     []string   `json:"reasonCodes"`
}

func (e LeadRouted) EventName() string { return NameLeadRouted }

// SlaTimerBreached is published when the sweep transitions a timer to BREACHED.
type SlaTimerBreached struct {
	BaseEvent
	TenantID        uuid.UUID  `json:"tenantId"`
	LeadID          uuid.UUID  `json:"leadId"`
	TimerID         uuid.UUID  `json:"timerId"`
	TimerType       string     `json:"timerType"`
	RuleID          *uuid.UUID `json:"ruleId,omitempty"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	PondTeamID      *uuid.UUID `json:"pondTeamId,omitempty"`
}

func (e SlaTimerBreached) EventName() string { return NameSlaTimerBreached }

// SlaTimerSatisfied is published when a business event satisfies a pending timer.
type SlaTimerSatisfied struct {
	BaseEvent
	TenantID  uuid.UUID `json:"tenantId"`
	LeadID    uuid.UUID `json:"leadId"`
	TimerID   uuid.UUID `json:"timerId"`
	TimerType string    `json:"timerType"`
}

func (e SlaTimerSatisfied) EventName() string { return NameSlaTimerSatisfied }

// ApprovalResolved is published when a broker approves or rejects a queued
// assignment.
type ApprovalResolved struct {
	BaseEvent
	TenantID        uuid.UUID  `json:"tenantId"`
	LeadID          uuid.UUID  `json:"leadId"`
	QueueItemID     uuid.UUID  `json:"queueItemId"`
	Approved        bool       `json:"approved"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	ResolvedBy      uuid.UUID  `json:"resolvedBy"`
}

func (e ApprovalResolved) EventName() string { return NameApprovalResolved }
