package scoring

import (
	"math"
	"testing"

	"leadrouter/internal/routing/domain"

	"github.com/google/uuid"
)

func testCandidate() domain.CandidateSnapshot {
	return domain.CandidateSnapshot{
		Agent: domain.AgentSnapshot{
			AgentID:        uuid.New(),
			CapacityTarget: 10,
			KeptApptRate:   0.8,
			GeographyFit:   1.0,
			PriceBandFit:   0.7,
			LeadTypeFit:    0.75,
		},
		CapacityRemaining: 5,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore_Deterministic(t *testing.T) {
	scorer := New(DefaultWeights())
	candidate := testCandidate()

	// 0.5*0.20 + 0.8*0.30 + 1.0*0.20 + 0.7*0.15 + 0.75*0.15 = 0.7575
	result := scorer.Score(candidate, Options{})
	if !almostEqual(result.Score, 0.7575) {
		t.Fatalf("expected score 0.7575, got %v", result.Score)
	}
	if len(result.Reasons) != 5 {
		t.Fatalf("expected 5 factor reasons, got %d: %v", len(result.Reasons), result.Reasons)
	}

	again := scorer.Score(candidate, Options{})
	if result.Score != again.Score {
		t.Fatalf("expected identical inputs to score identically")
	}
}

func TestScore_QuietHoursHalvesResponsivenessWeight(t *testing.T) {
	scorer := New(DefaultWeights())
	candidate := testCandidate()

	result := scorer.Score(candidate, Options{QuietHours: true})
	// kept weight 0.15: (0.1 + 0.12 + 0.2 + 0.105 + 0.1125) / 0.85 = 0.75
	if !almostEqual(result.Score, 0.75) {
		t.Fatalf("expected score 0.75 during quiet hours, got %v", result.Score)
	}

	found := false
	for _, reason := range result.Reasons {
		if reason == domain.ReasonQuietHours {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected quiet-hours reason, got %v", result.Reasons)
	}
}

func TestScore_ImportanceScalesFactors(t *testing.T) {
	scorer := New(DefaultWeights())

	strongGeo := testCandidate()
	strongGeo.Agent.GeographyFit = 1.0
	strongGeo.Agent.KeptApptRate = 0.5

	strongKept := testCandidate()
	strongKept.Agent.GeographyFit = 0.4
	strongKept.Agent.KeptApptRate = 1.0

	base := Options{}
	if scorer.Score(strongKept, base).Score <= scorer.Score(strongGeo, base).Score {
		t.Fatalf("expected responsiveness to dominate at default importance")
	}

	boosted := Options{GeographyImportance: 10}
	if scorer.Score(strongGeo, boosted).Score <= scorer.Score(strongKept, boosted).Score {
		t.Fatalf("expected geography to dominate when importance is boosted")
	}
}

func TestScore_ZeroWeights(t *testing.T) {
	scorer := New(Weights{})
	result := scorer.Score(testCandidate(), Options{})
	if result.Score != 0 {
		t.Fatalf("expected zero score with zero weights, got %v", result.Score)
	}
}

func TestScore_CapacityFactorClamped(t *testing.T) {
	scorer := New(Weights{CapacityRemaining: 1})

	over := testCandidate()
	over.Agent.CapacityTarget = 2
	over.CapacityRemaining = 10
	if got := scorer.Score(over, Options{}).Score; got != 1 {
		t.Fatalf("expected capacity factor clamped to 1, got %v", got)
	}

	zeroTarget := testCandidate()
	zeroTarget.Agent.CapacityTarget = 0
	if got := scorer.Score(zeroTarget, Options{}).Score; got != 0 {
		t.Fatalf("expected zero capacity factor without a target, got %v", got)
	}
}
