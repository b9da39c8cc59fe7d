package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/config"
	"github.com/kingrea/paneler/internal/logbook"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
	"github.com/kingrea/paneler/internal/workflow/resolver"
)

func TestEngineRunExecutesQueueInOrder(t *testing.T) {
	eng, repo, ctx, stubs, def := newEngineHarness(t)
	var events []string
	state, err := eng.Run(context.Background(), ctx, RunRequest{
		Definition: def,
		Progress: func(ev ProgressEvent) {
			events = append(events, string(ev.Phase)+":"+ev.ID)
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", state.RunID)
	}
	if state.Status != EngineStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", state.Status, state.StatusReason)
	}
	want := []string{"stage-adjust", "stage-panels", "stage-split"}
	if strings.Join(state.Executed, ",") != strings.Join(want, ",") {
		t.Fatalf("executed = %v", state.Executed)
	}
	if len(events) != 6 || events[0] != "started:stage-adjust" || events[5] != "finished:stage-split" {
		t.Fatalf("unexpected progress events: %v", events)
	}
	for _, id := range []string{"adjust", "panels", "split"} {
		if stubs[id].runs != 1 {
			t.Fatalf("%s ran %d times", id, stubs[id].runs)
		}
	}
	stored, err := repo.Load()
	if err != nil {
		t.Fatalf("load repo: %v", err)
	}
	if stored.RunID != state.RunID || stored.Status != EngineStatusComplete {
		t.Fatalf("persisted state mismatch: %+v", stored)
	}
	run := stored.Runs["stage-panels"]
	if run.Status != module.StatusCompleted || run.Duration() != time.Second {
		t.Fatalf("unexpected panels run record: %+v", run)
	}
}

func TestEngineRunSkipsCompleteStagesUnlessForced(t *testing.T) {
	eng, _, ctx, stubs, def := newEngineHarness(t)
	stubs["adjust"].complete = true
	state, err := eng.Run(context.Background(), ctx, RunRequest{Definition: def})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stubs["adjust"].runs != 0 || len(state.Executed) != 2 {
		t.Fatalf("adjust should be skipped, executed %v", state.Executed)
	}
	state, err = eng.Run(context.Background(), ctx, RunRequest{Definition: def, Force: true, Targets: []string{"stage-panels"}})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if stubs["adjust"].runs != 1 || stubs["split"].runs != 1 {
		t.Fatalf("forced run should rerun the closure only: adjust=%d split=%d", stubs["adjust"].runs, stubs["split"].runs)
	}
	if len(state.Executed) != 2 || !state.Force {
		t.Fatalf("forced executed = %v", state.Executed)
	}
}

func TestEngineRunStopsOnFailure(t *testing.T) {
	eng, repo, ctx, stubs, def := newEngineHarness(t)
	stubs["panels"].runErr = errors.New("boom")
	state, err := eng.Run(context.Background(), ctx, RunRequest{Definition: def})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected boom error, got %v", err)
	}
	if state.Status != EngineStatusError {
		t.Fatalf("expected error status, got %s", state.Status)
	}
	if stubs["split"].runs != 0 {
		t.Fatalf("split should not run after a failure")
	}
	stored, loadErr := repo.Load()
	if loadErr != nil {
		t.Fatalf("load: %v", loadErr)
	}
	if run := stored.Runs["stage-panels"]; run.Status != module.StatusFailed || run.Error != "boom" {
		t.Fatalf("failure not recorded: %+v", run)
	}
	lines, _ := ctx.Logbook.Tail(10)
	if !containsLine(lines, "ERROR") {
		t.Fatalf("failure not written to logbook: %v", lines)
	}
}

func TestEngineRunStopsOnNeedsInput(t *testing.T) {
	eng, _, ctx, stubs, def := newEngineHarness(t)
	stubs["adjust"].result = module.Result{Status: module.StatusNeedsInput, Message: "dataset missing"}
	state, err := eng.Run(context.Background(), ctx, RunRequest{Definition: def})
	if !errors.Is(err, ErrNeedsInput) {
		t.Fatalf("expected ErrNeedsInput, got %v", err)
	}
	if state.Status != EngineStatusBlocked || !strings.Contains(state.StatusReason, "dataset missing") {
		t.Fatalf("unexpected state: %s %s", state.Status, state.StatusReason)
	}
	if stubs["panels"].runs != 0 {
		t.Fatalf("panels should not run")
	}
}

func TestEngineRunHonoursCancellation(t *testing.T) {
	eng, _, ctx, stubs, def := newEngineHarness(t)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Run(cancelled, ctx, RunRequest{Definition: def})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stubs["adjust"].runs != 0 {
		t.Fatalf("nothing should run after cancellation")
	}
}

func TestEngineStatusKeepsPreviousRuns(t *testing.T) {
	eng, _, ctx, stubs, def := newEngineHarness(t)
	if _, err := eng.Run(context.Background(), ctx, RunRequest{Definition: def, Targets: []string{"stage-adjust"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	stubs["adjust"].complete = true
	state, err := eng.Status(ctx, def)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	adjust, ok := state.Node("stage-adjust")
	if !ok || adjust.State != resolver.NodeStateComplete || adjust.LastRun == nil {
		t.Fatalf("unexpected adjust status: %+v", adjust)
	}
	panels, _ := state.Node("stage-panels")
	if panels.State != resolver.NodeStateReady || panels.LastRun != nil {
		t.Fatalf("unexpected panels status: %+v", panels)
	}
	if state.Status != EngineStatusPending {
		t.Fatalf("expected pending, got %s", state.Status)
	}
}

func TestEngineCollectsWarnings(t *testing.T) {
	eng, _, ctx, stubs, def := newEngineHarness(t)
	stubs["panels"].result = module.Result{Status: module.StatusCompleted, Warnings: []string{"panel 2 short by 1"}}
	state, err := eng.Run(context.Background(), ctx, RunRequest{Definition: def})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if w := state.Warnings(); len(w) != 1 || w[0] != "panel 2 short by 1" {
		t.Fatalf("warnings = %v", w)
	}
}

func TestRepositoryMissingState(t *testing.T) {
	repo := NewRepository(t.TempDir())
	if _, err := repo.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func newEngineHarness(t *testing.T) (*Engine, *Repository, *module.ModuleContext, map[string]*stubModule, workflow.WorkflowDefinition) {
	t.Helper()
	ctx := newTestModuleContext(t)
	stubs := map[string]*stubModule{
		"adjust": newStubModule("adjust"),
		"panels": newStubModule("panels"),
		"split":  newStubModule("split"),
	}
	reg := module.NewRegistry()
	for id, stub := range stubs {
		stub := stub
		reg.MustRegister(id, func(module.Config) (module.Module, error) { return stub, nil })
	}
	def := workflow.WorkflowDefinition{
		ID: "test-workflow",
		Modules: []workflow.ModuleRef{
			{ID: "stage-adjust", ModuleID: "adjust"},
			{ID: "stage-panels", ModuleID: "panels", DependsOn: []string{"stage-adjust"}},
			{ID: "stage-split", ModuleID: "split", DependsOn: []string{"stage-panels"}},
		},
	}
	repo := NewRepository(ctx.Config.StateDir())
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	ids := 0
	eng, err := New(reg, repo, WithClock(clock), WithRunIDs(func() string {
		ids++
		return "run-" + string(rune('0'+ids))
	}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, repo, ctx, stubs, def
}

func newTestModuleContext(t *testing.T) *module.ModuleContext {
	t.Helper()
	tempDir := t.TempDir()
	cfg := &config.Config{ProjectDir: tempDir, PanelerProjectDir: filepath.Join(tempDir, config.PanelerDir)}
	lb, err := logbook.New(cfg.JournalPath())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	return module.NewContext(cfg, lb, nil, nil)
}

func containsLine(lines []string, needle string) bool {
	for _, line := range lines {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

type stubModule struct {
	info     module.Info
	complete bool
	runs     int
	result   module.Result
	runErr   error
}

func newStubModule(id string) *stubModule {
	return &stubModule{
		info: module.Info{ID: id, Name: "stub " + id, Version: "1.0.0"},
	}
}

func (m *stubModule) Info() module.Info               { return m.info }
func (m *stubModule) Inputs() []artifact.ArtifactRef  { return nil }
func (m *stubModule) Outputs() []artifact.ArtifactRef { return nil }

func (m *stubModule) IsComplete(*module.ModuleContext) (bool, error) {
	return m.complete, nil
}

func (m *stubModule) Run(*module.ModuleContext) (module.Result, error) {
	m.runs++
	if m.runErr != nil {
		return module.Result{}, m.runErr
	}
	if m.result.Status != "" {
		return m.result, nil
	}
	m.complete = true
	return module.Result{Status: module.StatusCompleted, Message: "ok"}, nil
}
