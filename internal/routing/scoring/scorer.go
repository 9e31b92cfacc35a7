// Package scoring computes the weighted multi-factor fitness score used by
// SCORE_AND_ASSIGN rules and BEST_FIT team targets.
package scoring

import (
	"fmt"

	"leadrouter/internal/routing/domain"
)

// Weights holds the per-factor weights. Effective weights are normalized at
// scoring time, so callers may supply any positive magnitudes.
type Weights struct {
	CapacityRemaining float64 `yaml:"capacityRemaining"`
	KeptApptRate      float64 `yaml:"keptApptRate"`
	GeographyFit      float64 `yaml:"geographyFit"`
	PriceBandFit      float64 `yaml:"priceBandFit"`
	LeadTypeFit       float64 `yaml:"leadTypeFit"`
}

// DefaultWeights are used unless an operator override is loaded.
func DefaultWeights() Weights {
	return Weights{
		CapacityRemaining: 0.20,
		KeptApptRate:      0.30,
		GeographyFit:      0.20,
		PriceBandFit:      0.15,
		LeadTypeFit:       0.15,
	}
}

// Options adjust one scoring run with the matched rule's declared importance
// weighting and the quiet-hours signal.
type Options struct {
	GeographyImportance float64
	PriceImportance     float64
	QuietHours          bool
}

// Result is one candidate's score plus the contributing factor reasons.
// Reasons appear in a fixed factor order so identical inputs produce
// identical output.
type Result struct {
	Score   float64
	Reasons []string
}

// Scorer computes normalized fitness scores. It is stateless and safe for
// concurrent use.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the given weights.
func New(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the weighted score for one candidate. The result is in
// [0, 1] and reproducible bit-for-bit for identical inputs.
func (s *Scorer) Score(candidate domain.CandidateSnapshot, opts Options) Result {
	geoImportance := opts.GeographyImportance
	if geoImportance <= 0 {
		geoImportance = 1.0
	}
	priceImportance := opts.PriceImportance
	if priceImportance <= 0 {
		priceImportance = 1.0
	}

	// During quiet hours first-touch expectations are relaxed, so the
	// responsiveness factor counts for less.
	keptWeight := s.weights.KeptApptRate
	if opts.QuietHours {
		keptWeight *= 0.5
	}

	factors := []struct {
		name   string
		value  float64
		weight float64
	}{
		{"capacity_remaining", capacityFactor(candidate), s.weights.CapacityRemaining},
		{"kept_appt_rate", candidate.Agent.KeptApptRate, keptWeight},
		{"geography_fit", candidate.Agent.GeographyFit, s.weights.GeographyFit * geoImportance},
		{"price_band_fit", candidate.Agent.PriceBandFit, s.weights.PriceBandFit * priceImportance},
		{"lead_type_fit", candidate.Agent.LeadTypeFit, s.weights.LeadTypeFit},
	}

	var totalWeight, weighted float64
	reasons := make([]string, 0, len(factors)+1)
	for _, factor := range factors {
		if factor.weight <= 0 {
			continue
		}
		totalWeight += factor.weight
		weighted += factor.value * factor.weight
		reasons = append(reasons, fmt.Sprintf("%s=%.2f (w=%.2f)", factor.name, factor.value, factor.weight))
	}

	if opts.QuietHours {
		reasons = append(reasons, domain.ReasonQuietHours)
	}

	if totalWeight == 0 {
		return Result{Score: 0, Reasons: reasons}
	}

	score := weighted / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Result{Score: score, Reasons: reasons}
}

// capacityFactor normalizes remaining capacity against the agent's target.
func capacityFactor(candidate domain.CandidateSnapshot) float64 {
	target := candidate.Agent.CapacityTarget
	if target <= 0 {
		return 0
	}
	factor := float64(candidate.CapacityRemaining) / float64(target)
	if factor > 1 {
		return 1
	}
	return factor
}
