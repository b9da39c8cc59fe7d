package adjust_targets

import (
	"strings"
	"testing"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/moduletest"
	"github.com/kingrea/paneler/internal/modules/runtime"
)

func TestRunWritesTargets(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	mod := New(WithClock(moduletest.Clock))
	result := moduletest.RunModule(t, ctx, mod)
	if len(result.Warnings) != 0 {
		t.Fatalf("balanced pool should not warn: %v", result.Warnings)
	}
	doc, err := runtime.ReadTargets(ctx)
	if err != nil {
		t.Fatalf("read targets: %v", err)
	}
	if doc.PoolSize != moduletest.PoolSize || doc.MaxPanels != 4 {
		t.Fatalf("pool size %d, max panels %d", doc.PoolSize, doc.MaxPanels)
	}
	if doc.Master["Gender"]["Female"] != 0.5 || doc.Adjusted["Age"]["Young"] != 0.5 {
		t.Fatalf("unexpected distributions: master %v adjusted %v", doc.Master, doc.Adjusted)
	}
	done, err := mod.IsComplete(ctx)
	if err != nil || !done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
	fps, err := mod.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	meta, err := ctx.Artifacts.Check(artifact.TargetsJSON)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if module.StoredFingerprint(meta.Metadata, artifact.TargetsJSON.ID) != fps[artifact.TargetsJSON.ID] {
		t.Fatalf("stored fingerprint does not match the current settings")
	}
	if !meta.Metadata.CreatedAt.Equal(moduletest.Clock()) {
		t.Fatalf("created at = %v", meta.Metadata.CreatedAt)
	}
}

func TestRunWarnsWhenTargetsAreCapped(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	ctx.Config.Project.Targets["Gender"] = map[string]float64{"Female": 0.8, "Male": 0.2}
	ctx.Config.Project.Panels.Count = 3
	result := moduletest.RunModule(t, ctx, New())
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Gender=Female") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	doc, err := runtime.ReadTargets(ctx)
	if err != nil {
		t.Fatalf("read targets: %v", err)
	}
	female := doc.Adjusted["Gender"]["Female"]
	if female >= 0.8 {
		t.Fatalf("female target should be lowered, got %v", female)
	}
	if sum := doc.Adjusted.Sum("Gender"); sum < 0.999 || sum > 1.001 {
		t.Fatalf("adjusted Gender sums to %v", sum)
	}
}

func TestRunNeedsDataset(t *testing.T) {
	ctx := moduletest.NewContext(t)
	result, err := New().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != module.StatusNeedsInput || !strings.Contains(result.Message, "not found") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunRejectsOversizedRequest(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	ctx.Config.Project.Panels.Count = 5
	result, err := New().Run(ctx)
	if err == nil || result.Status != module.StatusFailed {
		t.Fatalf("expected capacity failure, got %+v %v", result, err)
	}
	if !strings.Contains(result.Message, "at most 4 panels") {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestFingerprintTracksSettings(t *testing.T) {
	ctx := moduletest.NewContext(t)
	moduletest.WriteDataset(t, ctx)
	mod := New()
	before, err := mod.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	ctx.Config.Project.Panels.Size = 8
	after, err := mod.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if before[artifact.TargetsJSON.ID] == after[artifact.TargetsJSON.ID] {
		t.Fatalf("panel size change did not move the fingerprint")
	}
}
