package summary_report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/telemetry"
)

const (
	moduleID      = "summary-report"
	moduleVersion = "1.0.0"
)

// Option customizes the module.
type Option func(*Module)

// Module writes the run report.
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
		Name:        "Summary Report",
		Description: "Writes the text report, SUMMARY.md and a metrics textfile for the run.",
		Version:     moduleVersion,
	}
	base := module.NewBase(info)
	base.SetInputs(artifact.TargetsJSON, artifact.PanelsJSON, artifact.SplitsJSON)
	base.SetOutputs(artifact.SummaryDoc, artifact.SummaryReport, artifact.MetricsFile)
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
	fp, err := fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return runtime.ForOutputs(fp, m.Outputs()...), nil
}

func fingerprint(ctx *module.ModuleContext) (string, error) {
	upstream, err := runtime.SplitsFingerprint(ctx)
	if err != nil {
		return "", err
	}
	return module.Fingerprint("summary", upstream)
}

// IsComplete reports whether all three report files exist.
func (m *Module) IsComplete(ctx *module.ModuleContext) (bool, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return false, err
	}
	return runtime.OutputsReady(ctx, moduleID, m.Outputs()...)
}

// Run renders the reports from the recorded artifacts.
func (m *Module) Run(ctx *module.ModuleContext) (module.Result, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	if missing, err := m.MissingInputs(ctx); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	} else if len(missing) > 0 {
		return module.Result{Status: module.StatusNeedsInput, Message: runtime.WaitingFor(missing)}, nil
	}
	targets, err := runtime.ReadTargets(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	panels, err := runtime.ReadPanels(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	splits, err := runtime.ReadSplits(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	now := m.now()
	summary := export.Summary{
		GeneratedAt: now,
		Dataset:     targets.Dataset,
		PoolSize:    targets.PoolSize,
		Features:    targets.Features,
		Seed:        panels.Seed,
		Remainder:   panels.Remainder,
		Adjustments: targets.Report,
		Panels:      panels.Stats(),
		Splits:      splits.Stats(),
	}
	var report bytes.Buffer
	if err := export.WriteSummary(&report, summary); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: render report: %w", moduleID, err)
	}
	if err := ctx.Artifacts.Write(artifact.SummaryReport, report.Bytes(), artifact.Metadata{}); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write report: %w", moduleID, err)
	}

	metrics := telemetry.New()
	metrics.ObservePanels(allocation.Result{Stats: summary.Panels, Report: targets.Report})
	metrics.ObserveSplits(summary.Splits)
	if err := metrics.WriteFile(artifact.MetricsFile.Path(ctx.Workflow)); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	fp, err := fingerprint(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	meta := m.Metadata(ctx, artifact.SummaryDoc, fp)
	meta.CreatedAt = now
	body := renderMarkdown(targets, panels, splits, now)
	if err := ctx.Artifacts.Write(artifact.SummaryDoc, []byte(body), meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write summary: %w", moduleID, err)
	}
	return module.Result{
		Status:  module.StatusCompleted,
		Message: fmt.Sprintf("report for %d panel(s) written to %s", len(panels.Panels), ctx.Workflow.Dir()),
	}, nil
}
