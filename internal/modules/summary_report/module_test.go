package summary_report

import (
	"os"
	"strings"
	"testing"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/adjust_targets"
	"github.com/kingrea/paneler/internal/modules/create_panels"
	"github.com/kingrea/paneler/internal/modules/moduletest"
	"github.com/kingrea/paneler/internal/modules/split_panels"
)

func TestRunWritesReports(t *testing.T) {
	ctx := moduletest.NewContext(t)
	ctx.Config.Project.Remainder = "skip"
	moduletest.WriteDataset(t, ctx)
	for _, mod := range []module.Module{adjust_targets.New(), create_panels.New(), split_panels.New()} {
		moduletest.RunModule(t, ctx, mod)
	}
	mod := New(WithClock(moduletest.Clock))
	moduletest.RunModule(t, ctx, mod)

	report, err := os.ReadFile(artifact.SummaryReport.Path(ctx.Workflow))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"PANELING SUMMARY REPORT", "Generated:", "2026-03-02T09:30:00Z", "Remainder fill:", "skip", "SPLITS"} {
		if !strings.Contains(string(report), want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}

	meta, body, err := ctx.Artifacts.ReadDocument(artifact.SummaryDoc)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if meta.ModuleID != moduleID || len(meta.Inputs) != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	for _, want := range []string{"# Paneling Summary", "| Gender | Female | 0.500 | 0.500 | 0.500 |", "short (8 of 10)", "| 1 | 4 / 4 | 0.000 | yes |"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("summary missing %q:\n%s", want, body)
		}
	}

	prom, err := os.ReadFile(artifact.MetricsFile.Path(ctx.Workflow))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{"paneler_panels_created_total 2", "paneler_insufficient_draws_total 2", "paneler_split_sets_total 4"} {
		if !strings.Contains(string(prom), want) {
			t.Fatalf("metrics missing %q:\n%s", want, prom)
		}
	}
	if done, err := mod.IsComplete(ctx); err != nil || !done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
}

func TestRunNeedsSplits(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	result, err := New().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != module.StatusNeedsInput || !strings.Contains(result.Message, "2 inputs") {
		t.Fatalf("unexpected result %+v", result)
	}
}
