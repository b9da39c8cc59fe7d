package allocation

import (
	"fmt"
	"math"

	"github.com/kingrea/paneler/internal/dataset"
)

// TargetSumTolerance is how far a feature's proportions may stray from 1.
const TargetSumTolerance = 0.01

// Targets maps feature -> category -> desired proportion.
type Targets map[string]map[string]float64

// Clone returns a deep copy.
func (t Targets) Clone() Targets {
	out := make(Targets, len(t))
	for feature, cats := range t {
		inner := make(map[string]float64, len(cats))
		for cat, p := range cats {
			inner[cat] = p
		}
		out[feature] = inner
	}
	return out
}

// Categories returns a feature's categories in ascending order.
func (t Targets) Categories(feature string) []string {
	return dataset.SortedCategories(t[feature])
}

// Sum returns the total proportion for a feature.
func (t Targets) Sum(feature string) float64 {
	total := 0.0
	for _, cat := range t.Categories(feature) {
		total += t[feature][cat]
	}
	return total
}

// Validate checks that every feature has targets in [0,1] that sum to 1
// within TargetSumTolerance.
func (t Targets) Validate(features []string) error {
	for _, feature := range features {
		cats, ok := t[feature]
		if !ok || len(cats) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingTargets, feature)
		}
		for _, cat := range t.Categories(feature) {
			p := cats[cat]
			if math.IsNaN(p) || p < 0 || p > 1 {
				return fmt.Errorf("allocation: target %s=%s is %v, want 0..1", feature, cat, p)
			}
		}
		if sum := t.Sum(feature); math.Abs(sum-1) > TargetSumTolerance {
			return fmt.Errorf("allocation: targets for %s sum to %.4f, want 1.0", feature, sum)
		}
	}
	return nil
}

func (t Targets) requireFeatures(features []string) error {
	for _, feature := range features {
		if len(t[feature]) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingTargets, feature)
		}
	}
	return nil
}

func normalize(cats map[string]float64) map[string]float64 {
	total := 0.0
	for _, cat := range dataset.SortedCategories(cats) {
		total += cats[cat]
	}
	out := make(map[string]float64, len(cats))
	for cat, p := range cats {
		if total > 0 {
			out[cat] = p / total
		} else {
			out[cat] = 0
		}
	}
	return out
}
