package domain

import "github.com/google/uuid"

// Reason codes recorded on route events. Order of appearance in a
// RouteEvent's reasonCodes reflects the order decisions were taken.
const (
	ReasonRuleParseFailed       = "RULE_PARSE_FAILED"
	ReasonNoRuleMatch           = "NO_RULE_MATCH"
	ReasonNoEligibleCandidate   = "NO_ELIGIBLE_CANDIDATE"
	ReasonRelaxedAgentFilters   = "RELAXED_AGENT_FILTERS"
	ReasonPondFallback          = "POND_FALLBACK"
	ReasonApprovalPool          = "APPROVAL_POOL"
	ReasonRoundRobin            = "ROUND_ROBIN"
	ReasonBestFit               = "BEST_FIT"
	ReasonDirectAgent           = "DIRECT_AGENT"
	ReasonQuietHours            = "QUIET_HOURS"
	ReasonSlaFirstTouchBreach   = "SLA_FIRST_TOUCH_BREACHED"
	ReasonSlaKeptApptBreach     = "SLA_KEPT_APPOINTMENT_BREACHED"
	ReasonConsentNotGranted     = "CONSENT_NOT_GRANTED"
	ReasonMessagingNotReady     = "MESSAGING_NOT_READY"
)

// CandidateStatus classifies each considered candidate on the audit trail.
type CandidateStatus string

const (
	// CandidateSelected marks the winning candidate.
	CandidateSelected CandidateStatus = "SELECTED"
	// CandidateRejected marks an eligible candidate that lost on filters,
	// ordering, or score.
	CandidateRejected CandidateStatus = "REJECTED"
	// CandidateDisqualified marks a candidate excluded by a hard gating
	// reason. Filter relaxation never revisits these.
	CandidateDisqualified CandidateStatus = "DISQUALIFIED"
)

// ConsideredCandidate is one row of the per-decision audit trail.
type ConsideredCandidate struct {
	AgentID uuid.UUID       `json:"agentId"`
	Status  CandidateStatus `json:"status"`
	Score   *float64        `json:"score,omitempty"`
	Reasons []string        `json:"reasons,omitempty"`
}
