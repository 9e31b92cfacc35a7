package engine

import (
	"sort"

	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
)

// auditTrail accumulates one considered-candidate row per agent across
// target walks and relaxation passes. A later, stronger status upgrades an
// earlier row: SELECTED > REJECTED; DISQUALIFIED never changes.
type auditTrail struct {
	rows map[uuid.UUID]*domain.ConsideredCandidate
}

func newAuditTrail() *auditTrail {
	return &auditTrail{rows: make(map[uuid.UUID]*domain.ConsideredCandidate)}
}

func (a *auditTrail) disqualify(agentID uuid.UUID, reasons []string) {
	if _, exists := a.rows[agentID]; exists {
		return
	}
	a.rows[agentID] = &domain.ConsideredCandidate{
		AgentID: agentID,
		Status:  domain.CandidateDisqualified,
		Reasons: append([]string(nil), reasons...),
	}
}

func (a *auditTrail) reject(agentID uuid.UUID, score *float64, reasons []string) {
	if row, exists := a.rows[agentID]; exists {
		if row.Status == domain.CandidateSelected || row.Status == domain.CandidateDisqualified {
			return
		}
		row.Score = score
		row.Reasons = append(row.Reasons, reasons...)
		return
	}
	a.rows[agentID] = &domain.ConsideredCandidate{
		AgentID: agentID,
		Status:  domain.CandidateRejected,
		Score:   score,
		Reasons: append([]string(nil), reasons...),
	}
}

func (a *auditTrail) selectCandidate(agentID uuid.UUID, score *float64, reasons []string) {
	if row, exists := a.rows[agentID]; exists {
		row.Status = domain.CandidateSelected
		row.Score = score
		row.Reasons = append(row.Reasons, reasons...)
		return
	}
	a.rows[agentID] = &domain.ConsideredCandidate{
		AgentID: agentID,
		Status:  domain.CandidateSelected,
		Score:   score,
		Reasons: append([]string(nil), reasons...),
	}
}

// ranked returns the audit rows ordered for presentation: the selected
// candidate first, then rejected by descending score, then disqualified,
// ties broken by agent ID for determinism.
func (a *auditTrail) ranked() []domain.ConsideredCandidate {
	rows := make([]domain.ConsideredCandidate, 0, len(a.rows))
	for _, row := range a.rows {
		rows = append(rows, *row)
	}

	rank := func(status domain.CandidateStatus) int {
		switch status {
		case domain.CandidateSelected:
			return 0
		case domain.CandidateRejected:
			return 1
		default:
			return 2
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rank(rows[i].Status) != rank(rows[j].Status) {
			return rank(rows[i].Status) < rank(rows[j].Status)
		}
		si, sj := scoreOf(rows[i]), scoreOf(rows[j])
		if si != sj {
			return si > sj
		}
		return rows[i].AgentID.String() < rows[j].AgentID.String()
	})

	return rows
}

func scoreOf(row domain.ConsideredCandidate) float64 {
	if row.Score == nil {
		return -1
	}
	return *row.Score
}
