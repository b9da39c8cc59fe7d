package create_panels

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/adjust_targets"
	"github.com/kingrea/paneler/internal/modules/moduletest"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/telemetry"
	"github.com/kingrea/paneler/internal/workflow"
)

func TestRunDrawsDisjointPanels(t *testing.T) {
	ctx := moduletest.NewContext(t)
	ctx.Metrics = telemetry.New()
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())

	var progress []int
	mod := New(WithClock(moduletest.Clock), WithProgress(func(done, total int) {
		progress = append(progress, done)
	}))
	moduletest.RunModule(t, ctx, mod)
	if len(progress) != 2 || progress[1] != 2 {
		t.Fatalf("progress = %v", progress)
	}

	doc, err := runtime.ReadPanels(ctx)
	if err != nil {
		t.Fatalf("read panels: %v", err)
	}
	if len(doc.Panels) != 2 || doc.Seed != 42 {
		t.Fatalf("unexpected panels doc: %+v", doc)
	}
	seen := map[int]bool{}
	for _, p := range doc.Panels {
		if len(p.Keys) != 10 {
			t.Fatalf("panel %d has %d keys", p.Index, len(p.Keys))
		}
		for _, k := range p.Keys {
			if seen[k] {
				t.Fatalf("key %d drawn twice", k)
			}
			seen[k] = true
		}
	}

	manifest, err := workflow.LoadExportManifest(ctx.Workflow.PanelsManifestPath())
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if manifest.Format != "csv" || len(manifest.Files) != 2 || manifest.Files[0].File != "panel_1.csv" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	data, err := os.ReadFile(filepath.Join(ctx.Workflow.PanelsDir(), "panel_2.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 11 || lines[0] != "original_index,Name,Gender,Age" {
		t.Fatalf("unexpected export: %q", lines[0])
	}

	if done, err := mod.IsComplete(ctx); err != nil || !done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")
	if err := ctx.Metrics.WriteFile(metricsPath); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	prom, _ := os.ReadFile(metricsPath)
	if !strings.Contains(string(prom), "paneler_panels_created_total 2") {
		t.Fatalf("panels not observed:\n%s", prom)
	}
}

func TestRunIsReproducible(t *testing.T) {
	first := drawKeys(t)
	second := drawKeys(t)
	for i := range first {
		if strings.Join(first[i], ",") != strings.Join(second[i], ",") {
			t.Fatalf("panel %d differs between runs with the same seed", i+1)
		}
	}
}

func TestRunSkipRemainderWarnsShortPanels(t *testing.T) {
	ctx := moduletest.NewContext(t)
	ctx.Config.Project.Remainder = "skip"
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	result := moduletest.RunModule(t, ctx, New())
	if len(result.Warnings) != 2 || !strings.Contains(result.Warnings[0], "panel 1: allocation: only 8 of 10") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	doc, err := runtime.ReadPanels(ctx)
	if err != nil {
		t.Fatalf("read panels: %v", err)
	}
	if doc.Panels[0].Stats.Warning == nil || doc.Panels[0].Stats.Warning.Selected != 8 {
		t.Fatalf("warning not persisted: %+v", doc.Panels[0].Stats)
	}
}

func TestRunNeedsTargets(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	result, err := New().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != module.StatusNeedsInput || !strings.Contains(result.Message, artifact.TargetsJSON.ID) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunRefusesChangedDataset(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	f, err := os.OpenFile(ctx.Config.DatasetPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	if _, err := f.WriteString("person-99,Male,Old\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	result, err := New().Run(moduletest.Reload(t, ctx))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != module.StatusNeedsInput || !strings.Contains(result.Message, "dataset changed") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func drawKeys(t *testing.T) [][]string {
	t.Helper()
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	moduletest.RunModule(t, ctx, New())
	doc, err := runtime.ReadPanels(ctx)
	if err != nil {
		t.Fatalf("read panels: %v", err)
	}
	out := make([][]string, len(doc.Panels))
	for i, p := range doc.Panels {
		for _, k := range p.Keys {
			out[i] = append(out[i], strconv.Itoa(k))
		}
	}
	return out
}
