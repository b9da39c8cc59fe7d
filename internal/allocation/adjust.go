package allocation

import (
	"fmt"

	"github.com/kingrea/paneler/internal/dataset"
)

// Availability describes how one category's ideal target compares with what
// the pool can supply across all panels.
type Availability struct {
	Feature    string  `json:"feature"`
	Category   string  `json:"category"`
	Ideal      float64 `json:"ideal"`
	IdealTotal float64 `json:"ideal_total"`
	Available  int     `json:"available"`
	Shortfall  float64 `json:"shortfall"`
	PerPanel   float64 `json:"per_panel"`
	Adjusted   float64 `json:"adjusted"`
}

// Constrained reports whether the pool cannot meet the ideal target.
func (a Availability) Constrained() bool {
	return a.Shortfall > 0
}

// AdjustmentReport records every availability check made by Adjust.
type AdjustmentReport struct {
	NumPanels int            `json:"num_panels"`
	PanelSize int            `json:"panel_size"`
	Entries   []Availability `json:"entries"`
}

// Warnings lists one line per constrained category.
func (r AdjustmentReport) Warnings() []string {
	var out []string
	for _, e := range r.Entries {
		if !e.Constrained() {
			continue
		}
		out = append(out, fmt.Sprintf("%s=%s: need %.0f, have %d; target lowered from %.3f to %.3f",
			e.Feature, e.Category, e.IdealTotal, e.Available, e.Ideal, e.Adjusted))
	}
	return out
}

// CheckAvailability compares ideal targets with category counts in the pool.
// Adjusted holds the per-category value before re-normalization.
func CheckAvailability(pool *dataset.Pool, ideal Targets, features []string, numPanels, panelSize int) (AdjustmentReport, error) {
	report := AdjustmentReport{NumPanels: numPanels, PanelSize: panelSize}
	if err := ideal.requireFeatures(features); err != nil {
		return report, err
	}
	records := pool.Records()
	for _, feature := range features {
		counts, err := dataset.Counts(records, feature)
		if err != nil {
			return report, err
		}
		for _, cat := range ideal.Categories(feature) {
			p := ideal[feature][cat]
			idealTotal := float64(numPanels*panelSize) * p
			available := counts[cat]
			entry := Availability{
				Feature:    feature,
				Category:   cat,
				Ideal:      p,
				IdealTotal: idealTotal,
				Available:  available,
				PerPanel:   float64(available) / float64(numPanels),
				Adjusted:   p,
			}
			if float64(available) < idealTotal {
				entry.Shortfall = idealTotal - float64(available)
				entry.Adjusted = entry.PerPanel / float64(panelSize)
			}
			report.Entries = append(report.Entries, entry)
		}
	}
	return report, nil
}

// Adjust lowers targets the pool cannot satisfy for every panel and then
// re-normalizes each feature to sum to 1. A feature whose adjusted weights
// are all zero falls back to its normalized ideal targets.
func Adjust(pool *dataset.Pool, ideal Targets, features []string, numPanels, panelSize int) (Targets, AdjustmentReport, error) {
	if numPanels < 1 || panelSize < 1 {
		return nil, AdjustmentReport{}, fmt.Errorf("allocation: num panels and panel size must be positive, got %d and %d", numPanels, panelSize)
	}
	report, err := CheckAvailability(pool, ideal, features, numPanels, panelSize)
	if err != nil {
		return nil, report, err
	}
	raw := make(Targets, len(features))
	for _, e := range report.Entries {
		if raw[e.Feature] == nil {
			raw[e.Feature] = map[string]float64{}
		}
		raw[e.Feature][e.Category] = e.Adjusted
	}
	adjusted := make(Targets, len(features))
	for _, feature := range features {
		cats := raw[feature]
		total := 0.0
		for _, p := range cats {
			total += p
		}
		if total <= 0 {
			adjusted[feature] = normalize(ideal[feature])
			continue
		}
		adjusted[feature] = normalize(cats)
	}
	return adjusted, report, nil
}

// MaxPossiblePanels is how many panels of panelSize the pool can fill.
func MaxPossiblePanels(pool *dataset.Pool, panelSize int) int {
	if panelSize < 1 {
		return 0
	}
	return pool.Len() / panelSize
}
