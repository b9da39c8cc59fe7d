package adjust_targets

import (
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/runtime"
)

const (
	moduleID      = "adjust-targets"
	moduleVersion = "1.0.0"
)

// Option customizes the module.
type Option func(*Module)

// Module writes the adjusted targets.
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
		Name:        "Adjust Targets",
		Description: "Caps ideal proportions at what the pool can supply and re-normalizes them.",
		Version:     moduleVersion,
	}
	base := module.NewBase(info)
	base.SetOutputs(artifact.TargetsJSON)
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
	fp, err := runtime.TargetsFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return runtime.ForOutputs(fp, m.Outputs()...), nil
}

// IsComplete reports whether targets.json exists and is intact.
func (m *Module) IsComplete(ctx *module.ModuleContext) (bool, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return false, err
	}
	return runtime.OutputsReady(ctx, moduleID, m.Outputs()...)
}

// Run adjusts the configured targets against the dataset.
func (m *Module) Run(ctx *module.ModuleContext) (module.Result, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	pool, checksum, ok, err := runtime.Dataset(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: load dataset: %w", moduleID, err)
	}
	if !ok {
		return module.Result{Status: module.StatusNeedsInput, Message: fmt.Sprintf("dataset %s not found", ctx.Config.DatasetPath())}, nil
	}
	project := ctx.Config.Project
	features := project.Features
	ideal := ctx.Config.Targets()
	if err := ideal.Validate(features); err != nil {
		if errors.Is(err, allocation.ErrMissingTargets) {
			return module.Result{Status: module.StatusNeedsInput, Message: err.Error()}, nil
		}
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	if err := pool.ValidateFeatures(features); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	numPanels, panelSize := project.Panels.Count, project.Panels.Size
	if requested := numPanels * panelSize; requested > pool.Len() {
		capErr := &allocation.CapacityError{Requested: requested, Available: pool.Len()}
		return module.Result{Status: module.StatusFailed, Message: fmt.Sprintf("at most %d panels of %d fit", allocation.MaxPossiblePanels(pool, panelSize), panelSize)},
			fmt.Errorf("%s: %w", moduleID, capErr)
	}

	adjusted, report, err := allocation.Adjust(pool, ideal, features, numPanels, panelSize)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	master, err := masterDistribution(pool, features)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	doc := runtime.TargetsDoc{
		Dataset:   ctx.Config.DatasetPath(),
		Checksum:  checksum,
		PoolSize:  pool.Len(),
		Features:  append([]string{}, features...),
		NumPanels: numPanels,
		PanelSize: panelSize,
		MaxPanels: allocation.MaxPossiblePanels(pool, panelSize),
		Master:    master,
		Ideal:     ideal,
		Adjusted:  adjusted,
		Report:    report,
	}
	fp, err := runtime.TargetsFingerprint(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	meta := m.Metadata(ctx, artifact.TargetsJSON, fp)
	meta.CreatedAt = m.now()
	if err := ctx.Artifacts.WriteJSON(artifact.TargetsJSON, doc, meta); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write targets: %w", moduleID, err)
	}
	warnings := report.Warnings()
	ctx.Logger.With(moduleID).Printf("adjusted %d feature(s), %d constrained categories", len(features), len(warnings))
	return module.Result{
		Status:   module.StatusCompleted,
		Message:  fmt.Sprintf("%d feature(s) adjusted, %d constrained", len(features), len(warnings)),
		Warnings: warnings,
	}, nil
}

func masterDistribution(pool *dataset.Pool, features []string) (allocation.Targets, error) {
	records := pool.Records()
	out := make(allocation.Targets, len(features))
	for _, feature := range features {
		dist, err := dataset.Distribution(records, feature)
		if err != nil {
			return nil, err
		}
		out[feature] = dist
	}
	return out, nil
}
