// Package engine implements the routing decision engine: rule iteration,
// target resolution, round-robin and best-fit selection, and the
// filter-relaxation fallback path.
//
// Decide is pure apart from the injected round-robin cursor lookup; all
// persistence happens in the caller's transaction.
package engine

import (
	"context"
	"sort"

	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/scoring"

	"github.com/google/uuid"
)

// CursorFunc returns the agent that most recently received an assignment for
// the given team, or nil when the team has no history. The caller is
// responsible for serializing cursor reads per (tenant, team); inside an
// assign transaction this is a SELECT ... FOR UPDATE.
type CursorFunc func(ctx context.Context, teamID uuid.UUID) (*uuid.UUID, error)

// Input is everything one decision needs, frozen up front.
type Input struct {
	Lead domain.LeadRoutingContext
	// Rules are the tenant's enabled rules in ascending priority order,
	// ties broken by creation order.
	Rules []domain.Rule
	// SkippedRuleCount is how many rules were dropped at the parse boundary.
	SkippedRuleCount int
	Candidates       map[uuid.UUID]domain.CandidateSnapshot
	LastAssigned     CursorFunc
}

// Decision is the engine's outcome for one lead.
type Decision struct {
	RuleID           *uuid.UUID
	Mode             domain.RuleMode
	AssignedAgentID  *uuid.UUID
	FallbackTeamID   *uuid.UUID
	UsedFallback     bool
	ReasonCodes      []string
	Considered       []domain.ConsideredCandidate
	ConditionChecks  []domain.CheckResult
	SlaFirstTouchMin *int
	SlaKeptApptMin   *int
	// RoundRobinTeamID is set when the selection came from a ROUND_ROBIN
	// target; the caller must advance that team's cursor to the assigned
	// agent in the same transaction.
	RoundRobinTeamID *uuid.UUID
}

// Engine resolves routing decisions. It is stateless and safe for concurrent
// use across leads.
type Engine struct {
	scorer *scoring.Scorer
}

// New creates a decision engine backed by the given scorer.
func New(scorer *scoring.Scorer) *Engine {
	return &Engine{scorer: scorer}
}

// Decide evaluates the tenant's rules in priority order and resolves the
// first matching rule's targets into an assignment outcome. No rule matching
// at all yields a fallback decision with NO_RULE_MATCH.
func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	var prefix []string
	for i := 0; i < in.SkippedRuleCount; i++ {
		prefix = append(prefix, domain.ReasonRuleParseFailed)
	}

	// Audit rows and condition checks from matched-but-unviable rules are
	// carried forward so a terminal no-match still explains who was looked
	// at and why they were passed over.
	var (
		carriedConsidered []domain.ConsideredCandidate
		carriedChecks     []domain.CheckResult
	)

	for _, rule := range in.Rules {
		verdict := rule.Condition.Evaluate(in.Lead)
		if !verdict.Matched {
			continue
		}

		decision, viable, err := e.resolveRule(ctx, rule, in)
		if err != nil {
			return Decision{}, err
		}
		if !viable {
			// Matched but produced nothing and declared no pond;
			// evaluation continues with the next rule.
			carriedConsidered = append(carriedConsidered, decision.Considered...)
			carriedChecks = append(carriedChecks, verdict.Checks...)
			continue
		}

		decision.ReasonCodes = append(prefix, decision.ReasonCodes...)
		decision.ConditionChecks = verdict.Checks
		return decision, nil
	}

	return Decision{
		UsedFallback:    true,
		ReasonCodes:     append(prefix, domain.ReasonNoRuleMatch),
		Considered:      carriedConsidered,
		ConditionChecks: carriedChecks,
	}, nil
}

func (e *Engine) resolveRule(ctx context.Context, rule domain.Rule, in Input) (Decision, bool, error) {
	ruleID := rule.ID
	decision := Decision{
		RuleID:           &ruleID,
		Mode:             rule.Mode,
		SlaFirstTouchMin: rule.SlaFirstTouchMin,
		SlaKeptApptMin:   rule.SlaKeptApptMin,
	}

	audit := newAuditTrail()
	var err error

	switch rule.Mode {
	case domain.RuleModeScoreAndAssign:
		e.scoreAndAssign(rule, in, audit, &decision)
	default:
		err = e.firstMatch(ctx, rule, in, audit, &decision)
	}
	if err != nil {
		return Decision{}, false, err
	}

	decision.Considered = audit.ranked()

	if decision.AssignedAgentID != nil || decision.UsedFallback {
		return decision, true, nil
	}

	if pond := rule.PondTeamID(); pond != nil {
		decision.UsedFallback = true
		decision.FallbackTeamID = pond
		decision.ReasonCodes = append(decision.ReasonCodes,
			domain.ReasonNoEligibleCandidate, domain.ReasonPondFallback)
		return decision, true, nil
	}

	// Not viable; the populated audit trail rides along so Decide can
	// carry it into a terminal no-match.
	return decision, false, nil
}

// firstMatch walks targets in declared order. A strict pass applies agent
// filters; when nothing is viable and the rule allows it, a relaxed pass
// ignores the filters. Gating reasons hold in both passes.
func (e *Engine) firstMatch(ctx context.Context, rule domain.Rule, in Input, audit *auditTrail, decision *Decision) error {
	if err := e.walkTargets(ctx, rule, in, audit, decision, false); err != nil {
		return err
	}

	if decision.AssignedAgentID == nil && !decision.UsedFallback && rule.RelaxAllowed() {
		if err := e.walkTargets(ctx, rule, in, audit, decision, true); err != nil {
			return err
		}
		if decision.AssignedAgentID != nil {
			decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonRelaxedAgentFilters)
		}
	}

	return nil
}

func (e *Engine) walkTargets(ctx context.Context, rule domain.Rule, in Input, audit *auditTrail, decision *Decision, relaxed bool) error {
	for _, target := range rule.Targets {
		switch target.Kind {
		case domain.TargetAgent:
			if e.tryAgentTarget(target, in, audit, decision, relaxed) {
				return nil
			}
		case domain.TargetTeam:
			done, err := e.tryTeamTarget(ctx, rule, target, in, audit, decision, relaxed)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case domain.TargetPond:
			decision.UsedFallback = true
			decision.FallbackTeamID = target.TeamID
			decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonPondFallback)
			return nil
		}
	}
	return nil
}

func (e *Engine) tryAgentTarget(target domain.Target, in Input, audit *auditTrail, decision *Decision, relaxed bool) bool {
	candidate, ok := in.Candidates[*target.AgentID]
	if !ok {
		return false
	}

	if candidate.Gated() {
		audit.disqualify(candidate.Agent.AgentID, candidate.GatingReasons)
		return false
	}

	if !relaxed {
		if passed, reasons := target.Filter.Evaluate(candidate); !passed {
			audit.reject(candidate.Agent.AgentID, nil, reasons)
			return false
		}
	}

	audit.selectCandidate(candidate.Agent.AgentID, nil, []string{domain.ReasonDirectAgent})
	agentID := candidate.Agent.AgentID
	decision.AssignedAgentID = &agentID
	decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonDirectAgent)
	return true
}

func (e *Engine) tryTeamTarget(ctx context.Context, rule domain.Rule, target domain.Target, in Input, audit *auditTrail, decision *Decision, relaxed bool) (bool, error) {
	eligible := e.teamEligible(target, in, audit, relaxed)
	if len(eligible) == 0 {
		return false, nil
	}

	switch target.Strategy {
	case domain.StrategyBestFit:
		winner := e.pickBestFit(rule, in.Lead, eligible, audit)
		decision.AssignedAgentID = &winner
		decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonBestFit)
		return true, nil
	default:
		winner, err := e.pickRoundRobin(ctx, *target.TeamID, eligible, in, audit)
		if err != nil {
			return false, err
		}
		decision.AssignedAgentID = &winner
		decision.RoundRobinTeamID = target.TeamID
		decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonRoundRobin)
		return true, nil
	}
}

// teamEligible resolves a TEAM target's membership, applying the role
// allow-list and (on strict passes) the agent filter.
func (e *Engine) teamEligible(target domain.Target, in Input, audit *auditTrail, relaxed bool) []domain.CandidateSnapshot {
	var eligible []domain.CandidateSnapshot
	for _, candidate := range in.Candidates {
		membership, member := candidate.MembershipOf(*target.TeamID)
		if !member {
			continue
		}
		if len(target.Roles) > 0 && !roleAllowed(target.Roles, membership.Role) {
			continue
		}

		if candidate.Gated() {
			audit.disqualify(candidate.Agent.AgentID, candidate.GatingReasons)
			continue
		}

		if !relaxed {
			if passed, reasons := target.Filter.Evaluate(candidate); !passed {
				audit.reject(candidate.Agent.AgentID, nil, reasons)
				continue
			}
		}

		eligible = append(eligible, candidate)
	}
	return eligible
}

// pickRoundRobin orders eligible members by membership creation time
// (undefined sorts last), then agent ID, and resumes after the team's most
// recently assigned agent, wrapping around.
func (e *Engine) pickRoundRobin(ctx context.Context, teamID uuid.UUID, eligible []domain.CandidateSnapshot, in Input, audit *auditTrail) (uuid.UUID, error) {
	sort.Slice(eligible, func(i, j int) bool {
		a, _ := eligible[i].MembershipOf(teamID)
		b, _ := eligible[j].MembershipOf(teamID)
		switch {
		case a.CreatedAt == nil && b.CreatedAt == nil:
		case a.CreatedAt == nil:
			return false
		case b.CreatedAt == nil:
			return true
		case !a.CreatedAt.Equal(*b.CreatedAt):
			return a.CreatedAt.Before(*b.CreatedAt)
		}
		return eligible[i].Agent.AgentID.String() < eligible[j].Agent.AgentID.String()
	})

	last, err := in.LastAssigned(ctx, teamID)
	if err != nil {
		return uuid.Nil, err
	}

	next := 0
	if last != nil {
		for i, candidate := range eligible {
			if candidate.Agent.AgentID == *last {
				next = (i + 1) % len(eligible)
				break
			}
		}
	}

	winner := eligible[next].Agent.AgentID
	for i, candidate := range eligible {
		if i == next {
			audit.selectCandidate(candidate.Agent.AgentID, nil, []string{domain.ReasonRoundRobin})
		} else {
			audit.reject(candidate.Agent.AgentID, nil, []string{"not next in rotation"})
		}
	}
	return winner, nil
}

// pickBestFit scores eligible members and selects the highest, ties broken
// by agent ID.
func (e *Engine) pickBestFit(rule domain.Rule, lead domain.LeadRoutingContext, eligible []domain.CandidateSnapshot, audit *auditTrail) uuid.UUID {
	opts := scoring.Options{
		GeographyImportance: rule.GeographyImportance,
		PriceImportance:     rule.PriceImportance,
		QuietHours:          lead.QuietHours,
	}

	type scored struct {
		candidate domain.CandidateSnapshot
		result    scoring.Result
	}

	results := make([]scored, 0, len(eligible))
	for _, candidate := range eligible {
		results = append(results, scored{candidate, e.scorer.Score(candidate, opts)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].result.Score != results[j].result.Score {
			return results[i].result.Score > results[j].result.Score
		}
		return results[i].candidate.Agent.AgentID.String() < results[j].candidate.Agent.AgentID.String()
	})

	for i, entry := range results {
		score := entry.result.Score
		if i == 0 {
			audit.selectCandidate(entry.candidate.Agent.AgentID, &score, entry.result.Reasons)
		} else {
			audit.reject(entry.candidate.Agent.AgentID, &score, entry.result.Reasons)
		}
	}

	return results[0].candidate.Agent.AgentID
}

// scoreAndAssign scores gating-eligible candidates that pass agent filters
// (the strict set); when the strict set is empty and the rule's fallback
// allows it, the full gating-eligible set is rescored (the relaxed set).
// Relaxation is strictly last-resort: a strict match always wins.
func (e *Engine) scoreAndAssign(rule domain.Rule, in Input, audit *auditTrail, decision *Decision) {
	gatingEligible := make(map[uuid.UUID]domain.CandidateSnapshot)
	strict := make(map[uuid.UUID]domain.CandidateSnapshot)

	for _, target := range rule.Targets {
		switch target.Kind {
		case domain.TargetAgent:
			candidate, ok := in.Candidates[*target.AgentID]
			if !ok {
				continue
			}
			e.classify(target, candidate, audit, gatingEligible, strict)
		case domain.TargetTeam:
			for _, candidate := range in.Candidates {
				membership, member := candidate.MembershipOf(*target.TeamID)
				if !member {
					continue
				}
				if len(target.Roles) > 0 && !roleAllowed(target.Roles, membership.Role) {
					continue
				}
				e.classify(target, candidate, audit, gatingEligible, strict)
			}
		}
	}

	pool := strict
	if len(pool) == 0 && rule.RelaxAllowed() && len(gatingEligible) > 0 {
		pool = gatingEligible
		decision.ReasonCodes = append(decision.ReasonCodes, domain.ReasonRelaxedAgentFilters)
	}
	if len(pool) == 0 {
		return
	}

	eligible := make([]domain.CandidateSnapshot, 0, len(pool))
	for _, candidate := range pool {
		eligible = append(eligible, candidate)
	}

	winner := e.pickBestFit(rule, in.Lead, eligible, audit)
	decision.AssignedAgentID = &winner
}

// classify sorts one candidate into the gating-eligible and strict sets,
// recording disqualifications and filter rejections on the audit trail.
func (e *Engine) classify(target domain.Target, candidate domain.CandidateSnapshot, audit *auditTrail, gatingEligible, strict map[uuid.UUID]domain.CandidateSnapshot) {
	id := candidate.Agent.AgentID

	if candidate.Gated() {
		audit.disqualify(id, candidate.GatingReasons)
		return
	}

	gatingEligible[id] = candidate

	if passed, reasons := target.Filter.Evaluate(candidate); passed {
		strict[id] = candidate
	} else {
		audit.reject(id, nil, reasons)
	}
}

func roleAllowed(allowed []string, role string) bool {
	for _, item := range allowed {
		if item == role {
			return true
		}
	}
	return false
}
