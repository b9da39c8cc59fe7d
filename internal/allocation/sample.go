package allocation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/kingrea/paneler/internal/dataset"
)

// RemainderPolicy decides what happens when the cascade selects fewer
// records than requested, which happens when sub-strata are short or quotas
// round down.
type RemainderPolicy string

const (
	// RemainderRandom tops the draw up with random unused candidates,
	// ignoring stratification.
	RemainderRandom RemainderPolicy = "random"
	// RemainderSkip leaves the draw short.
	RemainderSkip RemainderPolicy = "skip"
)

// ParseRemainderPolicy accepts "random", "skip" or "" (random).
func ParseRemainderPolicy(value string) (RemainderPolicy, error) {
	switch RemainderPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", RemainderRandom:
		return RemainderRandom, nil
	case RemainderSkip:
		return RemainderSkip, nil
	default:
		return "", fmt.Errorf("allocation: unknown remainder policy %q", value)
	}
}

// Draw is the outcome of one stratified sample.
type Draw struct {
	Keys []int
	// Excluded is the input exclusion set plus Keys.
	Excluded dataset.KeySet
	// Remainder counts keys added by the remainder fill.
	Remainder int
	Warning   *InsufficientSamplesWarning
}

type sampleOptions struct {
	remainder RemainderPolicy
}

// SampleOption tunes Sample.
type SampleOption func(*sampleOptions)

// WithRemainder sets the remainder policy.
func WithRemainder(policy RemainderPolicy) SampleOption {
	return func(o *sampleOptions) {
		if policy != "" {
			o.remainder = policy
		}
	}
}

// Sample draws up to size records from the pool that are not in excluded.
// Scarcity never fails: a short draw carries a warning instead.
func Sample(pool *dataset.Pool, excluded dataset.KeySet, adjusted Targets, features []string, size int, seed int64, opts ...SampleOption) (Draw, error) {
	options := sampleOptions{remainder: RemainderRandom}
	for _, opt := range opts {
		opt(&options)
	}
	if err := adjusted.requireFeatures(features); err != nil {
		return Draw{}, err
	}
	if err := pool.ValidateFeatures(features); err != nil {
		return Draw{}, err
	}
	if size < 0 {
		return Draw{}, fmt.Errorf("allocation: sample size must not be negative, got %d", size)
	}

	var candidates []dataset.Record
	for _, rec := range pool.Records() {
		if !excluded.Has(rec.Key) {
			candidates = append(candidates, rec)
		}
	}

	s := &sampler{targets: adjusted, features: features, rng: NewRand(seed)}
	selected := s.cascade(candidates, 0, size)

	draw := Draw{}
	if len(selected) < size && options.remainder == RemainderRandom {
		picked := dataset.NewKeySet(dataset.Keys(selected)...)
		var unused []dataset.Record
		for _, rec := range candidates {
			if !picked.Has(rec.Key) {
				unused = append(unused, rec)
			}
		}
		fill := s.take(unused, size-len(selected))
		draw.Remainder = len(fill)
		selected = append(selected, fill...)
	}

	draw.Keys = dataset.Keys(selected)
	draw.Excluded = excluded.Union(draw.Keys...)
	if len(draw.Keys) < size {
		draw.Warning = &InsufficientSamplesWarning{Requested: size, Selected: len(draw.Keys)}
	}
	return draw, nil
}

type sampler struct {
	targets  Targets
	features []string
	rng      *rand.Rand
}

// cascade splits quota across the categories of features[level] and recurses
// into each category. Categories are visited in sorted order so the result
// never depends on map iteration.
func (s *sampler) cascade(candidates []dataset.Record, level, quota int) []dataset.Record {
	if quota <= 0 || len(candidates) == 0 {
		return nil
	}
	if level == len(s.features) {
		return s.take(candidates, quota)
	}
	feature := s.features[level]
	remaining := quota
	var out []dataset.Record
	for _, cat := range s.targets.Categories(feature) {
		if remaining == 0 {
			break
		}
		n := int(math.RoundToEven(float64(quota) * s.targets[feature][cat]))
		if n > remaining {
			n = remaining
		}
		if n <= 0 {
			continue
		}
		var group []dataset.Record
		for _, rec := range candidates {
			if rec.Values[feature] == cat {
				group = append(group, rec)
			}
		}
		out = append(out, s.cascade(group, level+1, n)...)
		remaining -= n
	}
	return out
}

// take returns a random subset of n records, or all of them when fewer exist.
func (s *sampler) take(records []dataset.Record, n int) []dataset.Record {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	shuffled := append([]dataset.Record(nil), records...)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
