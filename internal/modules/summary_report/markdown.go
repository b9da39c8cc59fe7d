package summary_report

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/split"
)

func renderMarkdown(targets runtime.TargetsDoc, panels runtime.PanelsDoc, splits runtime.SplitsDoc, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Paneling Summary\n\n")
	fmt.Fprintf(&b, "- Generated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Dataset: `%s` (%d records)\n", targets.Dataset, targets.PoolSize)
	fmt.Fprintf(&b, "- Features: %s\n", strings.Join(targets.Features, ", "))
	fmt.Fprintf(&b, "- Panels: %d x %d (pool supports at most %d)\n", targets.NumPanels, targets.PanelSize, targets.MaxPanels)
	fmt.Fprintf(&b, "- Seed: %d, remainder fill: %s\n", panels.Seed, panels.Remainder)
	fmt.Fprintf(&b, "- Sets per panel: %d\n\n", splits.NumSets)

	b.WriteString("## Targets\n\n")
	b.WriteString("| Feature | Category | Master | Ideal | Adjusted |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	for _, feature := range targets.Features {
		cats := map[string]struct{}{}
		for _, m := range []map[string]float64{targets.Master[feature], targets.Ideal[feature], targets.Adjusted[feature]} {
			for cat := range m {
				cats[cat] = struct{}{}
			}
		}
		for _, cat := range dataset.SortedCategories(cats) {
			fmt.Fprintf(&b, "| %s | %s | %.3f | %.3f | %.3f |\n", feature, cat,
				targets.Master[feature][cat], targets.Ideal[feature][cat], targets.Adjusted[feature][cat])
		}
	}
	if warnings := targets.Report.Warnings(); len(warnings) > 0 {
		b.WriteString("\nConstrained categories:\n\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\n## Panels\n\n")
	b.WriteString("| Panel | Size | Max deviation | Remainder | Status |\n")
	b.WriteString("|---:|---:|---:|---:|---|\n")
	for _, p := range panels.Panels {
		st := p.Stats
		status := "ok"
		if st.MaxDeviation > allocation.DefaultMatchTolerance {
			status = "check"
		}
		if st.Warning != nil {
			status = fmt.Sprintf("short (%d of %d)", st.Warning.Selected, st.Warning.Requested)
		}
		fmt.Fprintf(&b, "| %d | %d | %.3f | %d | %s |\n", st.Panel, st.Size, st.MaxDeviation, st.Remainder, status)
	}

	b.WriteString("\n## Splits\n\n")
	b.WriteString("| Panel | Set sizes | Max deviation | Balanced |\n")
	b.WriteString("|---:|---|---:|---|\n")
	for _, p := range splits.Panels {
		sizes := make([]string, len(p.Stats.SetSizes))
		for i, n := range p.Stats.SetSizes {
			sizes[i] = fmt.Sprint(n)
		}
		balanced := "yes"
		if !p.Stats.Balanced(split.DefaultBalanceTolerance) {
			balanced = "no"
		}
		fmt.Fprintf(&b, "| %d | %s | %.3f | %s |\n", p.Panel, strings.Join(sizes, " / "), p.Stats.MaxDeviation, balanced)
	}
	return b.String()
}
