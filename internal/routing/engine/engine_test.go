package engine

import (
	"context"
	"testing"
	"time"

	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/scoring"

	"github.com/google/uuid"
)

func newEngine() *Engine {
	return New(scoring.New(scoring.DefaultWeights()))
}

func fixedCursor(last *uuid.UUID) CursorFunc {
	return func(ctx context.Context, teamID uuid.UUID) (*uuid.UUID, error) {
		return last, nil
	}
}

// member builds a team member candidate whose rotation order is fixed by the
// membership join time offset.
func member(teamID uuid.UUID, joinOffset time.Duration, kept float64) domain.CandidateSnapshot {
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(joinOffset)
	agent := domain.AgentSnapshot{
		AgentID:        uuid.New(),
		CapacityTarget: 10,
		KeptApptRate:   kept,
		GeographyFit:   0.75,
		PriceBandFit:   0.7,
		LeadTypeFit:    0.75,
		ConsentReady:   true,
		MessagingReady: true,
	}
	return domain.NewCandidateSnapshot(agent,
		[]domain.TeamMembership{{TeamID: teamID, Role: "MEMBER", CreatedAt: &joined}},
		nil, nil, nil)
}

func candidateMap(snaps ...domain.CandidateSnapshot) map[uuid.UUID]domain.CandidateSnapshot {
	m := make(map[uuid.UUID]domain.CandidateSnapshot, len(snaps))
	for _, s := range snaps {
		m[s.Agent.AgentID] = s
	}
	return m
}

func roundRobinRule(teamID uuid.UUID) domain.Rule {
	return domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeFirstMatch,
		Targets: []domain.Target{{
			Kind:     domain.TargetTeam,
			TeamID:   &teamID,
			Strategy: domain.StrategyRoundRobin,
		}},
	}
}

func hasReason(codes []string, want string) bool {
	for _, code := range codes {
		if code == want {
			return true
		}
	}
	return false
}

func TestDecide_NoRules(t *testing.T) {
	decision, err := newEngine().Decide(context.Background(), Input{
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.UsedFallback {
		t.Fatalf("expected fallback decision")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonNoRuleMatch) {
		t.Fatalf("expected NO_RULE_MATCH, got %v", decision.ReasonCodes)
	}
	if decision.AssignedAgentID != nil {
		t.Fatalf("expected no assignment")
	}
}

func TestDecide_SkippedRulesPrefixReasons(t *testing.T) {
	decision, err := newEngine().Decide(context.Background(), Input{
		SkippedRuleCount: 2,
		LastAssigned:     fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	want := []string{domain.ReasonRuleParseFailed, domain.ReasonRuleParseFailed, domain.ReasonNoRuleMatch}
	if len(decision.ReasonCodes) != len(want) {
		t.Fatalf("expected %v, got %v", want, decision.ReasonCodes)
	}
	for i, code := range want {
		if decision.ReasonCodes[i] != code {
			t.Fatalf("expected %v, got %v", want, decision.ReasonCodes)
		}
	}
}

func TestDecide_FirstMatchingRuleWins(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.8)
	b := member(teamID, time.Hour, 0.8)

	sellerOnly := roundRobinRule(teamID)
	sellerOnly.Condition = &domain.ConditionNode{Kind: domain.ConditionCheck, Check: &domain.Check{
		Field: "leadType", Operator: domain.OpEquals, Value: domain.LeadTypeSeller,
	}}
	catchAll := roundRobinRule(teamID)

	decision, err := newEngine().Decide(context.Background(), Input{
		Lead:         domain.LeadRoutingContext{LeadType: domain.LeadTypeBuyer},
		Rules:        []domain.Rule{sellerOnly, catchAll},
		Candidates:   candidateMap(a, b),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.RuleID == nil || *decision.RuleID != catchAll.ID {
		t.Fatalf("expected the catch-all rule to decide")
	}
	if decision.AssignedAgentID == nil {
		t.Fatalf("expected an assignment")
	}
}

func TestDecide_RoundRobinRotation(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.8)
	b := member(teamID, time.Hour, 0.8)
	c := member(teamID, 2*time.Hour, 0.8)
	rule := roundRobinRule(teamID)

	assign := func(last *uuid.UUID) uuid.UUID {
		decision, err := newEngine().Decide(context.Background(), Input{
			Rules:        []domain.Rule{rule},
			Candidates:   candidateMap(a, b, c),
			LastAssigned: fixedCursor(last),
		})
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if decision.AssignedAgentID == nil {
			t.Fatalf("expected an assignment")
		}
		if decision.RoundRobinTeamID == nil || *decision.RoundRobinTeamID != teamID {
			t.Fatalf("expected round-robin team marker")
		}
		if !hasReason(decision.ReasonCodes, domain.ReasonRoundRobin) {
			t.Fatalf("expected ROUND_ROBIN reason, got %v", decision.ReasonCodes)
		}
		return *decision.AssignedAgentID
	}

	// no history starts at the head of the rotation
	if got := assign(nil); got != a.Agent.AgentID {
		t.Fatalf("expected first member to open the rotation")
	}
	aID := a.Agent.AgentID
	if got := assign(&aID); got != b.Agent.AgentID {
		t.Fatalf("expected rotation to advance to the second member")
	}
	// wrap-around from the tail
	cID := c.Agent.AgentID
	if got := assign(&cID); got != a.Agent.AgentID {
		t.Fatalf("expected rotation to wrap to the first member")
	}
	// a departed cursor agent restarts at the head
	gone := uuid.New()
	if got := assign(&gone); got != a.Agent.AgentID {
		t.Fatalf("expected unknown cursor to restart the rotation")
	}
}

func TestDecide_RoundRobinSkipsGatedMember(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.8)
	b := member(teamID, time.Hour, 0.8)
	b.GatingReasons = []string{domain.ReasonConsentNotGranted}
	c := member(teamID, 2*time.Hour, 0.8)

	aID := a.Agent.AgentID
	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{roundRobinRule(teamID)},
		Candidates:   candidateMap(a, b, c),
		LastAssigned: fixedCursor(&aID),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != c.Agent.AgentID {
		t.Fatalf("expected rotation to skip the gated member")
	}

	for _, row := range decision.Considered {
		if row.AgentID == b.Agent.AgentID && row.Status != domain.CandidateDisqualified {
			t.Fatalf("expected gated member recorded as disqualified, got %s", row.Status)
		}
	}
}

func TestDecide_RelaxationRetriesFilters(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.5)

	minRate := 0.6
	rule := domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeFirstMatch,
		Targets: []domain.Target{{
			Kind:     domain.TargetTeam,
			TeamID:   &teamID,
			Strategy: domain.StrategyRoundRobin,
			Filter:   &domain.AgentFilter{MinKeptApptRate: &minRate},
		}},
		Fallback: &domain.Fallback{RelaxAgentFilters: true},
	}

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(a),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != a.Agent.AgentID {
		t.Fatalf("expected relaxed pass to assign the filtered member")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonRelaxedAgentFilters) {
		t.Fatalf("expected RELAXED_AGENT_FILTERS, got %v", decision.ReasonCodes)
	}
}

func TestDecide_RelaxationNeverBypassesGating(t *testing.T) {
	teamID := uuid.New()
	pondID := uuid.New()
	a := member(teamID, 0, 0.9)
	a.GatingReasons = []string{domain.ReasonMessagingNotReady}

	rule := roundRobinRule(teamID)
	rule.Fallback = &domain.Fallback{RelaxAgentFilters: true, PondTeamID: &pondID}

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(a),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID != nil {
		t.Fatalf("expected gated member never assigned, even relaxed")
	}
	if !decision.UsedFallback || decision.FallbackTeamID == nil || *decision.FallbackTeamID != pondID {
		t.Fatalf("expected pond fallback")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonPondFallback) {
		t.Fatalf("expected POND_FALLBACK, got %v", decision.ReasonCodes)
	}
}

func TestDecide_UnviableRuleContinues(t *testing.T) {
	emptyTeam := uuid.New()
	teamID := uuid.New()
	a := member(teamID, 0, 0.8)

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{roundRobinRule(emptyTeam), roundRobinRule(teamID)},
		Candidates:   candidateMap(a),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != a.Agent.AgentID {
		t.Fatalf("expected evaluation to continue past the unviable rule")
	}
}

func TestDecide_NoMatchKeepsAuditFromUnviableRule(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.5)
	agentID := a.Agent.AgentID

	minRate := 0.6
	rule := domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeFirstMatch,
		Condition: &domain.ConditionNode{Kind: domain.ConditionCheck, Check: &domain.Check{
			Field: "leadType", Operator: domain.OpEquals, Value: domain.LeadTypeBuyer,
		}},
		Targets: []domain.Target{{
			Kind:    domain.TargetAgent,
			AgentID: &agentID,
			Filter:  &domain.AgentFilter{MinKeptApptRate: &minRate},
		}},
	}

	decision, err := newEngine().Decide(context.Background(), Input{
		Lead:         domain.LeadRoutingContext{LeadType: domain.LeadTypeBuyer},
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(a),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.UsedFallback || !hasReason(decision.ReasonCodes, domain.ReasonNoRuleMatch) {
		t.Fatalf("expected terminal no-match, got %v", decision.ReasonCodes)
	}

	// the rule matched and rejected the only candidate; that rejection must
	// survive into the no-match outcome
	if len(decision.Considered) != 1 {
		t.Fatalf("expected the rejected candidate on the audit trail, got %d rows", len(decision.Considered))
	}
	row := decision.Considered[0]
	if row.AgentID != agentID || row.Status != domain.CandidateRejected {
		t.Fatalf("expected %s rejected, got %+v", agentID, row)
	}
	if len(row.Reasons) == 0 {
		t.Fatalf("expected a rate-shortfall reason on the rejected row")
	}
	if len(decision.ConditionChecks) == 0 {
		t.Fatalf("expected the matched rule's condition checks retained")
	}
}

func TestDecide_BestFitPicksHighestScore(t *testing.T) {
	teamID := uuid.New()
	weak := member(teamID, 0, 0.3)
	strong := member(teamID, time.Hour, 0.95)

	rule := domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeFirstMatch,
		Targets: []domain.Target{{
			Kind:     domain.TargetTeam,
			TeamID:   &teamID,
			Strategy: domain.StrategyBestFit,
		}},
	}

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(weak, strong),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != strong.Agent.AgentID {
		t.Fatalf("expected the stronger performer to win best-fit")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonBestFit) {
		t.Fatalf("expected BEST_FIT, got %v", decision.ReasonCodes)
	}
	if len(decision.Considered) != 2 {
		t.Fatalf("expected both members on the audit trail, got %d", len(decision.Considered))
	}
	if decision.Considered[0].Status != domain.CandidateSelected {
		t.Fatalf("expected the selected row ranked first")
	}
}

func TestDecide_ScoreAndAssignRelaxesOnlyWhenStrictSetEmpty(t *testing.T) {
	teamID := uuid.New()
	passing := member(teamID, 0, 0.9)
	filtered := member(teamID, time.Hour, 0.95)
	filtered.CapacityRemaining = 0
	filtered.Agent.ActivePipeline = 10

	minCap := 1
	rule := domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeScoreAndAssign,
		Targets: []domain.Target{{
			Kind:     domain.TargetTeam,
			TeamID:   &teamID,
			Strategy: domain.StrategyBestFit,
			Filter:   &domain.AgentFilter{MinCapacityRemaining: &minCap},
		}},
		Fallback: &domain.Fallback{RelaxAgentFilters: true},
	}

	// strict set non-empty: the filtered member stays out even though it
	// would outscore the passing one
	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(passing, filtered),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != passing.Agent.AgentID {
		t.Fatalf("expected strict match to win over a higher relaxed score")
	}
	if hasReason(decision.ReasonCodes, domain.ReasonRelaxedAgentFilters) {
		t.Fatalf("expected no relaxation when the strict set is non-empty")
	}

	// strict set empty: relaxation rescues the filtered member
	decision, err = newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(filtered),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != filtered.Agent.AgentID {
		t.Fatalf("expected relaxed assignment")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonRelaxedAgentFilters) {
		t.Fatalf("expected RELAXED_AGENT_FILTERS, got %v", decision.ReasonCodes)
	}
}

func TestDecide_DirectAgentTarget(t *testing.T) {
	teamID := uuid.New()
	a := member(teamID, 0, 0.8)
	agentID := a.Agent.AgentID

	rule := domain.Rule{
		ID:      uuid.New(),
		Mode:    domain.RuleModeFirstMatch,
		Targets: []domain.Target{{Kind: domain.TargetAgent, AgentID: &agentID}},
	}

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(a),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != agentID {
		t.Fatalf("expected direct agent assignment")
	}
	if !hasReason(decision.ReasonCodes, domain.ReasonDirectAgent) {
		t.Fatalf("expected DIRECT_AGENT, got %v", decision.ReasonCodes)
	}
	if decision.SlaFirstTouchMin != nil {
		t.Fatalf("expected no SLA threshold carried from a rule that declares none")
	}
}

func TestDecide_RoleFilterOnTeamTarget(t *testing.T) {
	teamID := uuid.New()
	junior := member(teamID, 0, 0.8)
	lead := member(teamID, time.Hour, 0.8)
	lead.Memberships[0].Role = "LEAD"

	rule := domain.Rule{
		ID:   uuid.New(),
		Mode: domain.RuleModeFirstMatch,
		Targets: []domain.Target{{
			Kind:     domain.TargetTeam,
			TeamID:   &teamID,
			Strategy: domain.StrategyRoundRobin,
			Roles:    []string{"LEAD"},
		}},
	}

	decision, err := newEngine().Decide(context.Background(), Input{
		Rules:        []domain.Rule{rule},
		Candidates:   candidateMap(junior, lead),
		LastAssigned: fixedCursor(nil),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.AssignedAgentID == nil || *decision.AssignedAgentID != lead.Agent.AgentID {
		t.Fatalf("expected only the LEAD role to be eligible")
	}
}
