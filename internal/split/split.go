package split

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
)

// DefaultBalanceTolerance is the largest spread between sets still reported
// as balanced.
const DefaultBalanceTolerance = 0.02

// InvalidSetCountError reports a set count outside 2..panel size.
type InvalidSetCountError struct {
	NumSets   int
	PanelSize int
}

func (e *InvalidSetCountError) Error() string {
	return fmt.Sprintf("split: cannot split %d records into %d sets (want 2..%d)", e.PanelSize, e.NumSets, e.PanelSize)
}

// Set is one partition of a panel. Index is 1-based.
type Set struct {
	Index   int
	Records []dataset.Record
}

// Keys returns the set's record keys in order.
func (s Set) Keys() []int {
	return dataset.Keys(s.Records)
}

// Cursor decides where each stratum starts dealing.
type Cursor string

const (
	// CursorReset deals the i-th record of every stratum to set i mod n.
	// Set sizes differ by at most the number of strata.
	CursorReset Cursor = "reset"
	// CursorCarry continues dealing where the previous stratum stopped, so
	// set sizes differ by at most one.
	CursorCarry Cursor = "carry"
)

// ParseCursor accepts "reset", "carry" or "" (reset).
func ParseCursor(value string) (Cursor, error) {
	switch Cursor(strings.ToLower(strings.TrimSpace(value))) {
	case "", CursorReset:
		return CursorReset, nil
	case CursorCarry:
		return CursorCarry, nil
	default:
		return "", fmt.Errorf("split: unknown cursor mode %q", value)
	}
}

type options struct {
	cursor Cursor
}

// Option tunes Split and SplitAll.
type Option func(*options)

// WithCursor sets the cursor mode.
func WithCursor(c Cursor) Option {
	return func(o *options) {
		if c != "" {
			o.cursor = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{cursor: CursorReset}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Split deals a panel into numSets sets. Strata are visited in order of
// first appearance; each is shuffled with a seed derived from seed and the
// stratum key.
func Split(panel allocation.Panel, ideal allocation.Targets, features []string, numSets int, seed int64, opts ...Option) ([]Set, Stats, error) {
	o := buildOptions(opts)
	if numSets < 2 || numSets > panel.Len() {
		return nil, Stats{}, &InvalidSetCountError{NumSets: numSets, PanelSize: panel.Len()}
	}
	if err := dataset.ValidateFeatures(panel.Records, features); err != nil {
		return nil, Stats{}, err
	}

	var order []string
	strata := map[string][]dataset.Record{}
	for _, rec := range panel.Records {
		key, err := dataset.Stratum(rec, features)
		if err != nil {
			return nil, Stats{}, err
		}
		if _, ok := strata[key]; !ok {
			order = append(order, key)
		}
		strata[key] = append(strata[key], rec)
	}

	sets := make([]Set, numSets)
	for i := range sets {
		sets[i].Index = i + 1
	}
	offset := 0
	for _, key := range order {
		members := append([]dataset.Record(nil), strata[key]...)
		rng := allocation.NewRand(allocation.DeriveSeed(seed, "stratum", key))
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for i, rec := range members {
			slot := (offset + i) % numSets
			sets[slot].Records = append(sets[slot].Records, rec)
		}
		if o.cursor == CursorCarry {
			offset = (offset + len(members)) % numSets
		}
	}

	stats, err := ComputeStats(sets, ideal, features)
	if err != nil {
		return nil, Stats{}, err
	}
	stats.Cursor = o.cursor
	return sets, stats, nil
}

// SplitAll splits every panel concurrently. Panel i is split with a seed
// derived from seed and its index, so the output does not depend on
// scheduling.
func SplitAll(ctx context.Context, panels []allocation.Panel, ideal allocation.Targets, features []string, numSets int, seed int64, opts ...Option) ([][]Set, []Stats, error) {
	sets := make([][]Set, len(panels))
	stats := make([]Stats, len(panels))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, panel := range panels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, st, err := Split(panel, ideal, features, numSets, allocation.DeriveSeed(seed, "split", panel.Index), opts...)
			if err != nil {
				return fmt.Errorf("split: panel %d: %w", panel.Index, err)
			}
			st.Panel = panel.Index
			sets[i], stats[i] = s, st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sets, stats, nil
}

// SetCategoryStats compares one category's share across sets.
type SetCategoryStats struct {
	Target       *float64  `json:"target,omitempty"`
	Proportions  []float64 `json:"proportions"`
	Mean         float64   `json:"mean"`
	Std          float64   `json:"std"`
	MaxDeviation float64   `json:"max_deviation"`
}

// Stats summarizes how evenly a split spread each category.
type Stats struct {
	Panel        int                                    `json:"panel"`
	NumSets      int                                    `json:"num_sets"`
	Cursor       Cursor                                 `json:"cursor"`
	SetSizes     []int                                  `json:"set_sizes"`
	Features     map[string]map[string]SetCategoryStats `json:"features"`
	MaxDeviation float64                                `json:"max_deviation"`
}

// Balanced reports whether every category's spread is within tol.
func (s Stats) Balanced(tol float64) bool {
	return s.MaxDeviation <= tol
}

// ComputeStats measures category shares per set. MaxDeviation for a category
// is the largest share minus the smallest.
func ComputeStats(sets []Set, ideal allocation.Targets, features []string) (Stats, error) {
	stats := Stats{
		NumSets:  len(sets),
		SetSizes: make([]int, len(sets)),
		Features: make(map[string]map[string]SetCategoryStats, len(features)),
	}
	for i, s := range sets {
		stats.SetSizes[i] = len(s.Records)
	}
	for _, feature := range features {
		dists := make([]map[string]float64, len(sets))
		categories := map[string]struct{}{}
		for i, s := range sets {
			d, err := dataset.Distribution(s.Records, feature)
			if err != nil {
				return Stats{}, err
			}
			dists[i] = d
			for cat := range d {
				categories[cat] = struct{}{}
			}
		}
		for cat := range ideal[feature] {
			categories[cat] = struct{}{}
		}
		byCat := make(map[string]SetCategoryStats, len(categories))
		for _, cat := range dataset.SortedCategories(categories) {
			cs := SetCategoryStats{Proportions: make([]float64, len(sets))}
			if target, ok := ideal[feature][cat]; ok {
				cs.Target = &target
			}
			lo, hi := math.Inf(1), math.Inf(-1)
			for i := range sets {
				p := dists[i][cat]
				cs.Proportions[i] = p
				cs.Mean += p
				lo = math.Min(lo, p)
				hi = math.Max(hi, p)
			}
			if len(sets) > 0 {
				cs.Mean /= float64(len(sets))
				for _, p := range cs.Proportions {
					cs.Std += (p - cs.Mean) * (p - cs.Mean)
				}
				cs.Std = math.Sqrt(cs.Std / float64(len(sets)))
				cs.MaxDeviation = hi - lo
			}
			if cs.MaxDeviation > stats.MaxDeviation {
				stats.MaxDeviation = cs.MaxDeviation
			}
			byCat[cat] = cs
		}
		stats.Features[feature] = byCat
	}
	return stats, nil
}
