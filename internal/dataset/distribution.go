package dataset

import (
	"fmt"
	"sort"
)

// InvalidFeatureError reports a stratification feature missing from a record.
type InvalidFeatureError struct {
	Feature string
	Key     int
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("dataset: feature %q missing from record %d", e.Feature, e.Key)
}

// Counts returns how many records hold each value of feature.
func Counts(records []Record, feature string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, rec := range records {
		v, ok := rec.Values[feature]
		if !ok {
			return nil, &InvalidFeatureError{Feature: feature, Key: rec.Key}
		}
		counts[v]++
	}
	return counts, nil
}

// Distribution returns the share of records holding each value of feature.
// The shares sum to 1 up to float rounding. An empty input yields an empty map.
func Distribution(records []Record, feature string) (map[string]float64, error) {
	counts, err := Counts(records, feature)
	if err != nil {
		return nil, err
	}
	dist := make(map[string]float64, len(counts))
	if len(records) == 0 {
		return dist, nil
	}
	total := float64(len(records))
	for v, n := range counts {
		dist[v] = float64(n) / total
	}
	return dist, nil
}

// SortedCategories returns the keys of a per-category map in ascending order.
func SortedCategories[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
