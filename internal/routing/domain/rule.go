package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RuleMode selects how a matched rule resolves its targets.
type RuleMode string

const (
	// RuleModeFirstMatch walks targets in declared order; the first viable
	// target wins.
	RuleModeFirstMatch RuleMode = "FIRST_MATCH"
	// RuleModeScoreAndAssign scores all eligible candidates across targets
	// and assigns the highest scorer.
	RuleModeScoreAndAssign RuleMode = "SCORE_AND_ASSIGN"
)

// TargetKind is the tagged-variant discriminator for rule targets.
type TargetKind string

const (
	TargetAgent TargetKind = "AGENT"
	TargetTeam  TargetKind = "TEAM"
	TargetPond  TargetKind = "POND"
)

// TeamStrategy selects how a TEAM target picks among its members.
type TeamStrategy string

const (
	StrategyRoundRobin TeamStrategy = "ROUND_ROBIN"
	StrategyBestFit    TeamStrategy = "BEST_FIT"
)

// Target is one routing destination within a rule, evaluated in declaration
// order.
type Target struct {
	Kind     TargetKind   `json:"kind"`
	AgentID  *uuid.UUID   `json:"agentId,omitempty"`
	TeamID   *uuid.UUID   `json:"teamId,omitempty"`
	Strategy TeamStrategy `json:"strategy,omitempty"`
	Roles    []string     `json:"roles,omitempty"`
	Filter   *AgentFilter `json:"filter,omitempty"`
}

// Fallback configures what a rule does when no target yields a candidate.
type Fallback struct {
	PondTeamID        *uuid.UUID `json:"pondTeamId,omitempty"`
	RelaxAgentFilters bool       `json:"relaxAgentFilters,omitempty"`
}

// Rule is a tenant's routing rule, immutable for the duration of one
// decision. Priority is ascending: lower evaluates first; ties break on
// creation order.
type Rule struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Name                string
	Priority            int
	Mode                RuleMode
	Enabled             bool
	Condition           *ConditionNode
	Targets             []Target
	Fallback            *Fallback
	SlaFirstTouchMin    *int
	SlaKeptApptMin      *int
	GeographyImportance float64
	PriceImportance     float64
	CreatedAt           time.Time
}

// ParseTargets decodes and validates the stored target list. Targets are a
// closed set of tagged variants; anything out of shape rejects the whole
// list so the rule can be skipped.
func ParseTargets(raw json.RawMessage) ([]Target, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("rule has no targets")
	}

	var targets []Target
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("rule has no targets")
	}

	for i, target := range targets {
		if err := validateTarget(target); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}
	return targets, nil
}

func validateTarget(target Target) error {
	switch target.Kind {
	case TargetAgent:
		if target.AgentID == nil {
			return fmt.Errorf("AGENT target requires agentId")
		}
	case TargetTeam:
		if target.TeamID == nil {
			return fmt.Errorf("TEAM target requires teamId")
		}
		switch target.Strategy {
		case StrategyRoundRobin, StrategyBestFit:
		default:
			return fmt.Errorf("unknown team strategy %q", target.Strategy)
		}
	case TargetPond:
		if target.TeamID == nil {
			return fmt.Errorf("POND target requires teamId")
		}
	default:
		return fmt.Errorf("unknown target kind %q", target.Kind)
	}
	return nil
}

// ParseFallback decodes the stored fallback config; absent is valid.
func ParseFallback(raw json.RawMessage) (*Fallback, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var fallback Fallback
	if err := json.Unmarshal(raw, &fallback); err != nil {
		return nil, fmt.Errorf("decode fallback: %w", err)
	}
	return &fallback, nil
}

// RelaxAllowed reports whether the rule permits agent-filter relaxation.
func (r Rule) RelaxAllowed() bool {
	return r.Fallback != nil && r.Fallback.RelaxAgentFilters
}

// PondTeamID returns the rule's pond fallback team, if declared.
func (r Rule) PondTeamID() *uuid.UUID {
	if r.Fallback == nil {
		return nil
	}
	return r.Fallback.PondTeamID
}
