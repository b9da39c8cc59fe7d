package create_panels

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/workflow"
)

const (
	moduleID      = "create-panels"
	moduleVersion = "1.0.0"
)

// Option customizes the module.
type Option func(*Module)

// Module draws panels and exports them.
type Module struct {
	*module.Base
	now      func() time.Time
	progress func(done, total int)
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
		Name:        "Create Panels",
		Description: "Draws disjoint stratified panels and exports one file per panel.",
		Version:     moduleVersion,
	}
	base := module.NewBase(info)
	base.SetInputs(artifact.TargetsJSON)
	base.SetOutputs(artifact.PanelsJSON, artifact.PanelsManifest)
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

// WithProgress reports each panel as it is drawn.
func WithProgress(fn func(done, total int)) Option {
	return func(m *Module) {
		m.progress = fn
	}
}

// ArtifactFingerprints implements module.Fingerprinter.
func (m *Module) ArtifactFingerprints(ctx *module.ModuleContext) (map[string]string, error) {
	fp, err := runtime.PanelsFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return runtime.ForOutputs(fp, m.Outputs()...), nil
}

// IsComplete reports whether panels.json and the manifest are intact.
func (m *Module) IsComplete(ctx *module.ModuleContext) (bool, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return false, err
	}
	return runtime.OutputsReady(ctx, moduleID, m.Outputs()...)
}

// Run draws the configured panels.
func (m *Module) Run(ctx *module.ModuleContext) (module.Result, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	if missing, err := m.MissingInputs(ctx); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	} else if len(missing) > 0 {
		return module.Result{Status: module.StatusNeedsInput, Message: runtime.WaitingFor(missing)}, nil
	}
	pool, checksum, ok, err := runtime.Dataset(ctx)
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
	if targets.Checksum != checksum {
		return module.Result{Status: module.StatusNeedsInput, Message: "dataset changed since targets were adjusted"}, nil
	}
	format, err := runtime.Format(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	log := ctx.Logger.With(moduleID)
	opts := allocation.PanelOptions{
		Features:  targets.Features,
		NumPanels: targets.NumPanels,
		PanelSize: targets.PanelSize,
		Seed:      ctx.Config.Project.Seed,
		Remainder: ctx.Config.RemainderPolicy(),
		Progress: func(done, total int) {
			log.Printf("panel %d/%d drawn", done, total)
			if m.progress != nil {
				m.progress(done, total)
			}
		},
	}
	result, err := allocation.CreatePanels(pool, targets.Ideal, opts)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	wf := ctx.Workflow
	if err := wf.ClearPanels(); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: clear panels: %w", moduleID, err)
	}
	paths, err := export.WritePanels(wf.PanelsDir(), result.Panels, pool.Columns(), format)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	manifest := workflow.ExportManifest{Format: string(format)}
	for i, panel := range result.Panels {
		manifest.Files = append(manifest.Files, workflow.ExportEntry{
			Panel:   panel.Index,
			File:    filepath.Base(paths[i]),
			Records: panel.Len(),
		})
	}

	fp, err := runtime.PanelsFingerprint(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	now := m.now()
	meta := m.Metadata(ctx, artifact.PanelsJSON, fp)
	meta.CreatedAt = now
	if err := ctx.Artifacts.WriteJSON(artifact.PanelsJSON, runtime.NewPanelsDoc(result, opts), meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write panels: %w", moduleID, err)
	}
	meta = m.Metadata(ctx, artifact.PanelsManifest, fp)
	meta.CreatedAt = now
	if err := runtime.WriteManifest(ctx, artifact.PanelsManifest, manifest, meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write manifest: %w", moduleID, err)
	}
	ctx.Metrics.ObservePanels(result)

	warnings := panelWarnings(result.Stats)
	return module.Result{
		Status:   module.StatusCompleted,
		Message:  fmt.Sprintf("%d panel(s) of %d drawn from %d records", len(result.Panels), opts.PanelSize, pool.Len()),
		Warnings: warnings,
	}, nil
}

func panelWarnings(stats []allocation.PanelStats) []string {
	var out []string
	for _, st := range stats {
		if st.Warning != nil {
			out = append(out, fmt.Sprintf("panel %d: %s", st.Panel, st.Warning.Error()))
		}
		if st.MaxDeviation > allocation.DefaultMatchTolerance {
			out = append(out, fmt.Sprintf("panel %d: max deviation %.3f exceeds %.2f", st.Panel, st.MaxDeviation, allocation.DefaultMatchTolerance))
		}
	}
	return out
}
