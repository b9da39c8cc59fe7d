package split

import (
	"fmt"
	"sort"
)

// NamedKeys is a labeled collection of keys, such as one exported set.
type NamedKeys struct {
	Name string
	Keys []int
}

// Overlap lists keys shared by two collections.
type Overlap struct {
	A    string
	B    string
	Keys []int
}

// OverlapReport is the result of CheckOverlap.
type OverlapReport struct {
	Compared int
	Overlaps []Overlap
}

// Clean reports whether no two collections share a key.
func (r OverlapReport) Clean() bool {
	return len(r.Overlaps) == 0
}

func (r OverlapReport) String() string {
	if r.Clean() {
		return fmt.Sprintf("no overlap across %d pairs", r.Compared)
	}
	return fmt.Sprintf("%d of %d pairs overlap", len(r.Overlaps), r.Compared)
}

// CheckOverlap compares every pair of collections.
func CheckOverlap(named []NamedKeys) OverlapReport {
	report := OverlapReport{}
	sets := make([]map[int]struct{}, len(named))
	for i, n := range named {
		sets[i] = make(map[int]struct{}, len(n.Keys))
		for _, k := range n.Keys {
			sets[i][k] = struct{}{}
		}
	}
	for i := 0; i < len(named); i++ {
		for j := i + 1; j < len(named); j++ {
			report.Compared++
			var shared []int
			for k := range sets[i] {
				if _, ok := sets[j][k]; ok {
					shared = append(shared, k)
				}
			}
			if len(shared) > 0 {
				sort.Ints(shared)
				report.Overlaps = append(report.Overlaps, Overlap{A: named[i].Name, B: named[j].Name, Keys: shared})
			}
		}
	}
	return report
}
