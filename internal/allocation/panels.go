package allocation

import (
	"fmt"
	"math"

	"github.com/kingrea/paneler/internal/dataset"
)

// DefaultMatchTolerance is the largest |actual - adjusted| still reported as a
// match.
const DefaultMatchTolerance = 0.03

// Panel is one drawn sample, in draw order. Index is 1-based.
type Panel struct {
	Index   int
	Records []dataset.Record
}

// Keys returns the panel's record keys in order.
func (p Panel) Keys() []int {
	return dataset.Keys(p.Records)
}

// Len reports the panel size.
func (p Panel) Len() int {
	return len(p.Records)
}

// CategoryStats compares one category's share in a panel with its targets.
type CategoryStats struct {
	Target             float64 `json:"target"`
	AdjustedTarget     float64 `json:"adjusted_target"`
	Actual             float64 `json:"actual"`
	Deviation          float64 `json:"deviation"`
	DeviationFromIdeal float64 `json:"deviation_from_ideal"`
}

// Matches reports whether the achieved share is within tol of the adjusted
// target.
func (c CategoryStats) Matches(tol float64) bool {
	return math.Abs(c.Deviation) <= tol
}

// PanelStats describes how closely a panel tracks its targets.
type PanelStats struct {
	Panel        int                                 `json:"panel"`
	Size         int                                 `json:"size"`
	Features     map[string]map[string]CategoryStats `json:"features"`
	MaxDeviation float64                             `json:"max_deviation"`
	Remainder    int                                 `json:"remainder"`
	Warning      *InsufficientSamplesWarning         `json:"warning,omitempty"`
}

// PanelOptions configures CreatePanels.
type PanelOptions struct {
	Features  []string
	NumPanels int
	PanelSize int
	Seed      int64
	Remainder RemainderPolicy
	// Progress, when set, is called after each panel is drawn.
	Progress func(done, total int)
}

// Result is the outcome of CreatePanels.
type Result struct {
	Panels   []Panel
	Stats    []PanelStats
	Adjusted Targets
	Report   AdjustmentReport
	// Excluded holds every key used by any panel.
	Excluded dataset.KeySet
}

// Warnings returns the panels that came up short.
func (r Result) Warnings() []*InsufficientSamplesWarning {
	var out []*InsufficientSamplesWarning
	for _, st := range r.Stats {
		if st.Warning != nil {
			out = append(out, st.Warning)
		}
	}
	return out
}

// CreatePanels draws opts.NumPanels disjoint panels. Targets are adjusted once
// against the full pool, then each panel is drawn from the records no earlier
// panel used, with a seed derived from opts.Seed and the panel index.
func CreatePanels(pool *dataset.Pool, ideal Targets, opts PanelOptions) (Result, error) {
	if len(opts.Features) == 0 {
		return Result{}, fmt.Errorf("allocation: at least one feature is required")
	}
	if opts.NumPanels < 1 || opts.PanelSize < 1 {
		return Result{}, fmt.Errorf("allocation: num panels and panel size must be positive, got %d and %d", opts.NumPanels, opts.PanelSize)
	}
	if err := ideal.requireFeatures(opts.Features); err != nil {
		return Result{}, err
	}
	if err := pool.ValidateFeatures(opts.Features); err != nil {
		return Result{}, err
	}
	if requested := opts.NumPanels * opts.PanelSize; requested > pool.Len() {
		return Result{}, &CapacityError{Requested: requested, Available: pool.Len()}
	}

	adjusted, report, err := Adjust(pool, ideal, opts.Features, opts.NumPanels, opts.PanelSize)
	if err != nil {
		return Result{}, err
	}

	result := Result{Adjusted: adjusted, Report: report}
	excluded := dataset.KeySet{}
	for i := 1; i <= opts.NumPanels; i++ {
		draw, err := Sample(pool, excluded, adjusted, opts.Features, opts.PanelSize,
			DeriveSeed(opts.Seed, "panel", i), WithRemainder(opts.Remainder))
		if err != nil {
			return Result{}, fmt.Errorf("allocation: panel %d: %w", i, err)
		}
		excluded = draw.Excluded
		records, err := pool.Select(draw.Keys)
		if err != nil {
			return Result{}, err
		}
		panel := Panel{Index: i, Records: records}
		stats, err := ComputePanelStats(panel, ideal, adjusted, opts.Features)
		if err != nil {
			return Result{}, err
		}
		stats.Remainder = draw.Remainder
		stats.Warning = draw.Warning
		result.Panels = append(result.Panels, panel)
		result.Stats = append(result.Stats, stats)
		if opts.Progress != nil {
			opts.Progress(i, opts.NumPanels)
		}
	}
	result.Excluded = excluded
	return result, nil
}

// ComputePanelStats measures a panel against ideal and adjusted targets.
// Categories present in the panel but absent from the targets are reported
// with zero targets.
func ComputePanelStats(panel Panel, ideal, adjusted Targets, features []string) (PanelStats, error) {
	stats := PanelStats{
		Panel:    panel.Index,
		Size:     panel.Len(),
		Features: make(map[string]map[string]CategoryStats, len(features)),
	}
	for _, feature := range features {
		actual, err := dataset.Distribution(panel.Records, feature)
		if err != nil {
			return PanelStats{}, err
		}
		cats := map[string]CategoryStats{}
		for _, cat := range unionCategories(ideal[feature], adjusted[feature], actual) {
			cs := CategoryStats{
				Target:         ideal[feature][cat],
				AdjustedTarget: adjusted[feature][cat],
				Actual:         actual[cat],
			}
			cs.Deviation = cs.Actual - cs.AdjustedTarget
			cs.DeviationFromIdeal = cs.Actual - cs.Target
			if d := math.Abs(cs.Deviation); d > stats.MaxDeviation {
				stats.MaxDeviation = d
			}
			cats[cat] = cs
		}
		stats.Features[feature] = cats
	}
	return stats, nil
}

func unionCategories(maps ...map[string]float64) []string {
	seen := map[string]float64{}
	for _, m := range maps {
		for k := range m {
			seen[k] = 0
		}
	}
	return dataset.SortedCategories(seen)
}
