package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWeights returns the default weights, optionally overridden from a YAML
// file. An empty path means defaults; a present but unreadable or invalid
// file is an error so a typo doesn't silently fall back.
func LoadWeights(path string) (Weights, error) {
	weights := DefaultWeights()
	if path == "" {
		return weights, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read scoring weights: %w", err)
	}

	if err := yaml.Unmarshal(raw, &weights); err != nil {
		return Weights{}, fmt.Errorf("parse scoring weights: %w", err)
	}

	if weights.CapacityRemaining < 0 || weights.KeptApptRate < 0 ||
		weights.GeographyFit < 0 || weights.PriceBandFit < 0 || weights.LeadTypeFit < 0 {
		return Weights{}, fmt.Errorf("scoring weights must be non-negative")
	}

	return weights, nil
}
