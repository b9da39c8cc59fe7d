package export

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/split"
)

// Summary is everything the run report covers.
type Summary struct {
	GeneratedAt time.Time
	Dataset     string
	PoolSize    int
	Features    []string
	Seed        int64
	Remainder   allocation.RemainderPolicy
	Adjustments allocation.AdjustmentReport
	Panels      []allocation.PanelStats
	Splits      []split.Stats
}

// WriteSummary renders a plain-text run report.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p := func(format string, args ...any) {
		fmt.Fprintf(tw, format+"\n", args...)
	}

	p("PANELING SUMMARY REPORT")
	p("%s", strings.Repeat("=", 40))
	p("Generated:\t%s", s.GeneratedAt.UTC().Format(time.RFC3339))
	if s.Dataset != "" {
		p("Dataset:\t%s (%d records)", s.Dataset, s.PoolSize)
	}
	p("Features:\t%s", strings.Join(s.Features, ", "))
	p("Seed:\t%d", s.Seed)
	if s.Remainder != "" {
		p("Remainder fill:\t%s", s.Remainder)
	}
	p("")

	p("TARGET ADJUSTMENTS")
	if warnings := s.Adjustments.Warnings(); len(warnings) == 0 {
		p("  all ideal targets are available")
	} else {
		for _, line := range warnings {
			p("  %s", line)
		}
	}
	p("")

	p("PANELS")
	for _, st := range s.Panels {
		status := "OK"
		if st.MaxDeviation > allocation.DefaultMatchTolerance {
			status = "CHECK"
		}
		line := fmt.Sprintf("  Panel %d:\t%d records\tmax deviation %.3f\t%s", st.Panel, st.Size, st.MaxDeviation, status)
		if st.Remainder > 0 {
			line += fmt.Sprintf("\t%d from remainder", st.Remainder)
		}
		if st.Warning != nil {
			line += "\t" + st.Warning.Error()
		}
		p("%s", line)
		for _, feature := range s.Features {
			cats := st.Features[feature]
			for _, cat := range dataset.SortedCategories(cats) {
				cs := cats[cat]
				p("    %s=%s\t%.3f\t(target %.3f, adjusted %.3f)", feature, cat, cs.Actual, cs.Target, cs.AdjustedTarget)
			}
		}
	}

	if len(s.Splits) > 0 {
		p("")
		p("SPLITS")
		for _, st := range s.Splits {
			status := "OK"
			if !st.Balanced(split.DefaultBalanceTolerance) {
				status = "CHECK"
			}
			sizes := make([]string, len(st.SetSizes))
			for i, n := range st.SetSizes {
				sizes[i] = fmt.Sprint(n)
			}
			cursor := st.Cursor
			if cursor == "" {
				cursor = split.CursorReset
			}
			p("  Panel %d:\t%d sets\tsizes %s\t%s cursor\tmax deviation %.3f\t%s",
				st.Panel, st.NumSets, strings.Join(sizes, "/"), cursor, st.MaxDeviation, status)
		}
	}
	return tw.Flush()
}
