package split_panels

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/adjust_targets"
	"github.com/kingrea/paneler/internal/modules/create_panels"
	"github.com/kingrea/paneler/internal/modules/moduletest"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/split"
	"github.com/kingrea/paneler/internal/workflow"
)

func TestRunSplitsEveryPanel(t *testing.T) {
	ctx := panelledContext(t)
	mod := New(WithClock(moduletest.Clock))
	result := moduletest.RunModule(t, ctx, mod)
	if len(result.Warnings) != 0 {
		t.Fatalf("even strata should split cleanly: %v", result.Warnings)
	}
	doc, err := runtime.ReadSplits(ctx)
	if err != nil {
		t.Fatalf("read splits: %v", err)
	}
	if doc.NumSets != 2 || len(doc.Panels) != 2 {
		t.Fatalf("unexpected splits doc: %+v", doc)
	}
	panels, err := runtime.ReadPanels(ctx)
	if err != nil {
		t.Fatalf("read panels: %v", err)
	}
	for i, p := range doc.Panels {
		got := map[int]bool{}
		for _, set := range p.Sets {
			if len(set) != 4 {
				t.Fatalf("panel %d set sizes %v", p.Panel, p.Stats.SetSizes)
			}
			for _, k := range set {
				got[k] = true
			}
		}
		for _, k := range panels.Panels[i].Keys {
			if !got[k] {
				t.Fatalf("panel %d key %d missing from its sets", p.Panel, k)
			}
		}
		if p.Stats.MaxDeviation != 0 {
			t.Fatalf("panel %d max deviation %v", p.Panel, p.Stats.MaxDeviation)
		}
	}
	manifest, err := workflow.LoadExportManifest(ctx.Workflow.SplitsManifestPath())
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(manifest.Files) != 4 || manifest.Files[3].File != "panel_2_set_2.csv" {
		t.Fatalf("unexpected manifest: %+v", manifest.Files)
	}
	for _, path := range manifest.Paths(ctx.Workflow.SplitsDir()) {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing export %s", path)
		}
	}
	if done, err := mod.IsComplete(ctx); err != nil || !done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
}

func TestRunClearsSetsFromLargerSplit(t *testing.T) {
	ctx := panelledContext(t)
	ctx.Config.Project.Splits.Sets = 3
	moduletest.RunModule(t, ctx, New())
	doc, err := runtime.ReadSplits(ctx)
	if err != nil {
		t.Fatalf("read splits: %v", err)
	}
	// Four strata of two each start at set 1, leaving set 3 empty.
	if sizes := doc.Panels[0].Stats.SetSizes; len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 0 {
		t.Fatalf("set sizes = %v", sizes)
	}
	stale := filepath.Join(ctx.Workflow.SplitsDir(), "panel_1_set_3.csv")
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("expected %s after a 3-way split", stale)
	}

	ctx.Config.Project.Splits.Sets = 2
	moduletest.RunModule(t, ctx, New())
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("3-way set survived the 2-way split: %v", err)
	}
}

func TestRunHonoursCarryCursor(t *testing.T) {
	ctx := panelledContext(t)
	ctx.Config.Project.Splits.Sets = 3
	before, err := runtime.SplitsFingerprint(ctx)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	ctx.Config.Project.Splits.Cursor = "carry"
	after, err := runtime.SplitsFingerprint(ctx)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if before == after {
		t.Fatalf("cursor mode should change the splits fingerprint")
	}
	moduletest.RunModule(t, ctx, New())
	doc, err := runtime.ReadSplits(ctx)
	if err != nil {
		t.Fatalf("read splits: %v", err)
	}
	for _, p := range doc.Panels {
		sizes := p.Stats.SetSizes
		if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 2 {
			t.Fatalf("panel %d set sizes = %v", p.Panel, sizes)
		}
		if p.Stats.Cursor != split.CursorCarry {
			t.Fatalf("panel %d cursor = %s", p.Panel, p.Stats.Cursor)
		}
	}
}

func TestRunRejectsTooManySets(t *testing.T) {
	ctx := panelledContext(t)
	ctx.Config.Project.Splits.Sets = 9
	result, err := New().Run(ctx)
	if err == nil || result.Status != module.StatusFailed || !strings.Contains(err.Error(), "cannot split 8 records into 9 sets") {
		t.Fatalf("expected set count failure, got %+v %v", result, err)
	}
}

func TestRunNeedsPanels(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	result, err := New().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != module.StatusNeedsInput || !strings.Contains(result.Message, artifact.PanelsJSON.ID) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx := panelledContext(t)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := New().Run(ctx.WithContext(cancelled))
	if !errors.Is(err, context.Canceled) || result.Status != module.StatusFailed {
		t.Fatalf("expected cancellation, got %+v %v", result, err)
	}
}

// panelledContext draws two panels of eight, two records per stratum, by
// leaving the remainder unfilled.
func panelledContext(t *testing.T) *module.ModuleContext {
	t.Helper()
	ctx := moduletest.NewContext(t)
	ctx.Config.Project.Remainder = "skip"
	moduletest.WriteDataset(t, ctx)
	moduletest.RunModule(t, ctx, adjust_targets.New())
	moduletest.RunModule(t, ctx, create_panels.New())
	return ctx
}
