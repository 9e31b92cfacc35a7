package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus tracks the lifecycle of an approval queue entry. PENDING
// entries resolve to APPROVED or REJECTED by a broker action, or EXPIRED
// when a competing entry for the same lead is resolved first.
type QueueStatus string

const (
	QueuePending  QueueStatus = "PENDING"
	QueueApproved QueueStatus = "APPROVED"
	QueueRejected QueueStatus = "REJECTED"
	QueueExpired  QueueStatus = "EXPIRED"
)

// LeadSummary is the denormalized lead snapshot shown to the reviewing
// broker, captured when the entry is enqueued.
type LeadSummary struct {
	Source   string `json:"source"`
	LeadType string `json:"leadType"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}

// ApprovalQueueItem stages a routing decision for broker review instead of
// committing an assignment. RankedCandidates preserves the engine's full
// ordering so alternates can be offered without re-running the decision.
type ApprovalQueueItem struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	LeadID           uuid.UUID
	RouteEventID     uuid.UUID
	Status           QueueStatus
	LeadSummary      LeadSummary
	RankedCandidates []ConsideredCandidate
	ResolvedBy       *uuid.UUID
	ApprovedAgentID  *uuid.UUID
	ResolvedAt       *time.Time
	CreatedAt        time.Time
}

// Recommendation returns the top-ranked selectable candidate, if any.
func (q ApprovalQueueItem) Recommendation() *ConsideredCandidate {
	for i := range q.RankedCandidates {
		if q.RankedCandidates[i].Status != CandidateDisqualified {
			return &q.RankedCandidates[i]
		}
	}
	return nil
}

// Alternates returns up to n further selectable candidates past the
// recommendation.
func (q ApprovalQueueItem) Alternates(n int) []ConsideredCandidate {
	rec := q.Recommendation()
	if rec == nil {
		return nil
	}
	var out []ConsideredCandidate
	for i := range q.RankedCandidates {
		c := q.RankedCandidates[i]
		if c.AgentID == rec.AgentID || c.Status == CandidateDisqualified {
			continue
		}
		out = append(out, c)
		if len(out) == n {
			break
		}
	}
	return out
}
