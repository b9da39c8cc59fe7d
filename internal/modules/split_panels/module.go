package split_panels

import (
	"fmt"
	"time"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/split"
	"github.com/kingrea/paneler/internal/workflow"
)

const (
	moduleID      = "split-panels"
	moduleVersion = "1.0.0"
)

// Option customizes the module.
type Option func(*Module)

// Module splits panels into sets.
type Module struct {
	*module.Base
	now func() time.Time
}

// Register installs the module factory.
func Register(reg *module.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(moduleID, func(module.Config) (module.Module, error) {
		return New(), nil
	})
}

// New constructs the module.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Split Panels",
		Description: "Splits each panel into N sets that keep the panel's stratum mix.",
		Version:     moduleVersion,
	}
	base := module.NewBase(info)
	base.SetInputs(artifact.TargetsJSON, artifact.PanelsJSON)
	base.SetOutputs(artifact.SplitsJSON, artifact.SplitsManifest)
	mod := &Module{Base: &base, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(mod)
		}
	}
	return mod
}

// WithClock overrides the timestamp source (tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		if clock != nil {
			m.now = clock
		}
	}
}

// ArtifactFingerprints implements module.Fingerprinter.
func (m *Module) ArtifactFingerprints(ctx *module.ModuleContext) (map[string]string, error) {
	fp, err := runtime.SplitsFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return runtime.ForOutputs(fp, m.Outputs()...), nil
}

// IsComplete reports whether splits.json and the manifest are intact.
func (m *Module) IsComplete(ctx *module.ModuleContext) (bool, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return false, err
	}
	return runtime.OutputsReady(ctx, moduleID, m.Outputs()...)
}

// Run splits every panel into the configured number of sets.
func (m *Module) Run(ctx *module.ModuleContext) (module.Result, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	if missing, err := m.MissingInputs(ctx); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	} else if len(missing) > 0 {
		return module.Result{Status: module.StatusNeedsInput, Message: runtime.WaitingFor(missing)}, nil
	}
	pool, _, ok, err := runtime.Dataset(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: load dataset: %w", moduleID, err)
	}
	if !ok {
		return module.Result{Status: module.StatusNeedsInput, Message: fmt.Sprintf("dataset %s not found", ctx.Config.DatasetPath())}, nil
	}
	targets, err := runtime.ReadTargets(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	panelsDoc, err := runtime.ReadPanels(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	panels, err := panelsDoc.Materialize(pool)
	if err != nil {
		return module.Result{Status: module.StatusNeedsInput, Message: fmt.Sprintf("panels no longer match the dataset: %v", err)}, nil
	}
	format, err := runtime.Format(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	numSets := ctx.Config.Project.Splits.Sets
	seed := ctx.Config.Project.Seed
	sets, stats, err := split.SplitAll(ctx.Context(), panels, targets.Ideal, panelsDoc.Features, numSets, seed,
		split.WithCursor(ctx.Config.SplitCursor()))
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	wf := ctx.Workflow
	if err := wf.ClearSplits(); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: clear splits: %w", moduleID, err)
	}
	groups := make([]export.PanelSplit, len(panels))
	for i, panel := range panels {
		groups[i] = export.PanelSplit{Panel: panel.Index, Sets: sets[i]}
	}
	if _, err := export.WriteSplits(wf.SplitsDir(), groups, pool.Columns(), format); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	manifest := workflow.ExportManifest{Format: string(format)}
	for _, group := range groups {
		for _, set := range group.Sets {
			manifest.Files = append(manifest.Files, workflow.ExportEntry{
				Panel:   group.Panel,
				Set:     set.Index,
				File:    export.SetFileName(group.Panel, set.Index, format),
				Records: len(set.Records),
			})
		}
	}

	fp, err := runtime.SplitsFingerprint(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	now := m.now()
	meta := m.Metadata(ctx, artifact.SplitsJSON, fp)
	meta.CreatedAt = now
	doc := runtime.NewSplitsDoc(panels, sets, stats, numSets, seed)
	if err := ctx.Artifacts.WriteJSON(artifact.SplitsJSON, doc, meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write splits: %w", moduleID, err)
	}
	meta = m.Metadata(ctx, artifact.SplitsManifest, fp)
	meta.CreatedAt = now
	if err := runtime.WriteManifest(ctx, artifact.SplitsManifest, manifest, meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write manifest: %w", moduleID, err)
	}
	ctx.Metrics.ObserveSplits(stats)

	var warnings []string
	for _, st := range stats {
		if !st.Balanced(split.DefaultBalanceTolerance) {
			warnings = append(warnings, fmt.Sprintf("panel %d: sets differ by up to %.3f", st.Panel, st.MaxDeviation))
		}
	}
	ctx.Logger.With(moduleID).Printf("split %d panel(s) into %d sets", len(panels), numSets)
	return module.Result{
		Status:   module.StatusCompleted,
		Message:  fmt.Sprintf("%d panel(s) split into %d sets", len(panels), numSets),
		Warnings: warnings,
	}, nil
}
