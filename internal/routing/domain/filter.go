package domain

import "fmt"

// AgentFilter narrows which candidates a target will accept. Filters are
// soft constraints: a rule's fallback may relax them. They never override
// gating reasons.
type AgentFilter struct {
	MinKeptApptRate      *float64 `json:"minKeptApptRate,omitempty"`
	MinCapacityRemaining *int     `json:"minCapacityRemaining,omitempty"`
	RequiredTags         []string `json:"requiredTags,omitempty"`
	Languages            []string `json:"languages,omitempty"`
	Specialties          []string `json:"specialties,omitempty"`
}

// Evaluate checks the candidate against the filter. On failure it returns
// one human-readable reason per violated constraint, recorded on the audit
// trail.
func (f *AgentFilter) Evaluate(candidate CandidateSnapshot) (bool, []string) {
	if f == nil {
		return true, nil
	}

	var reasons []string

	if f.MinKeptApptRate != nil && candidate.Agent.KeptApptRate < *f.MinKeptApptRate {
		reasons = append(reasons, fmt.Sprintf(
			"kept appointment rate %.2f below minimum %.2f",
			candidate.Agent.KeptApptRate, *f.MinKeptApptRate))
	}

	if f.MinCapacityRemaining != nil && candidate.CapacityRemaining < *f.MinCapacityRemaining {
		reasons = append(reasons, fmt.Sprintf(
			"capacity remaining %d below minimum %d",
			candidate.CapacityRemaining, *f.MinCapacityRemaining))
	}

	for _, tag := range f.RequiredTags {
		if !candidate.HasAttribute(candidate.Tags, tag) {
			reasons = append(reasons, fmt.Sprintf("missing required tag %q", tag))
		}
	}

	if len(f.Languages) > 0 && !hasAny(candidate.Languages, f.Languages) {
		reasons = append(reasons, "no matching language")
	}

	if len(f.Specialties) > 0 && !hasAny(candidate.Specialties, f.Specialties) {
		reasons = append(reasons, "no matching specialty")
	}

	return len(reasons) == 0, reasons
}

func hasAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
