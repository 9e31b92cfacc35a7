package domain

import (
	"testing"

	"github.com/google/uuid"
)

func candidate(kept float64, remaining int) CandidateSnapshot {
	return CandidateSnapshot{
		Agent: AgentSnapshot{
			AgentID:      uuid.New(),
			KeptApptRate: kept,
		},
		CapacityRemaining: remaining,
		Tags:              []string{"luxury"},
		Languages:         []string{"en", "es"},
		Specialties:       []string{"condo"},
	}
}

func TestAgentFilter_NilPasses(t *testing.T) {
	var f *AgentFilter
	passed, reasons := f.Evaluate(candidate(0, 0))
	if !passed || len(reasons) != 0 {
		t.Fatalf("expected nil filter to pass, got %v %v", passed, reasons)
	}
}

func TestAgentFilter_CollectsAllViolations(t *testing.T) {
	minRate := 0.8
	minCap := 3
	f := &AgentFilter{
		MinKeptApptRate:      &minRate,
		MinCapacityRemaining: &minCap,
		RequiredTags:         []string{"waterfront"},
		Languages:            []string{"fr"},
		Specialties:          []string{"land"},
	}

	passed, reasons := f.Evaluate(candidate(0.5, 1))
	if passed {
		t.Fatalf("expected filter to fail")
	}
	if len(reasons) != 5 {
		t.Fatalf("expected 5 violation reasons, got %d: %v", len(reasons), reasons)
	}
}

func TestAgentFilter_PassesAtBoundary(t *testing.T) {
	minRate := 0.5
	minCap := 1
	f := &AgentFilter{
		MinKeptApptRate:      &minRate,
		MinCapacityRemaining: &minCap,
		RequiredTags:         []string{"luxury"},
		Languages:            []string{"es"},
		Specialties:          []string{"condo"},
	}

	passed, reasons := f.Evaluate(candidate(0.5, 1))
	if !passed {
		t.Fatalf("expected boundary values to pass, got %v", reasons)
	}
}

func TestNewCandidateSnapshot_GatingAndClamp(t *testing.T) {
	agent := AgentSnapshot{
		AgentID:        uuid.New(),
		CapacityTarget: 2,
		ActivePipeline: 5,
		ConsentReady:   false,
		MessagingReady: true,
	}

	snap := NewCandidateSnapshot(agent, nil, nil, nil, nil)
	if snap.CapacityRemaining != 0 {
		t.Fatalf("expected remaining capacity clamped to 0, got %d", snap.CapacityRemaining)
	}
	if !snap.Gated() {
		t.Fatalf("expected candidate to be gated")
	}
	if len(snap.GatingReasons) != 1 || snap.GatingReasons[0] != ReasonConsentNotGranted {
		t.Fatalf("expected only consent gating reason, got %v", snap.GatingReasons)
	}
}
