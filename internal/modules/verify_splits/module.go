package verify_splits

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/modules/runtime"
	"github.com/kingrea/paneler/internal/split"
	"github.com/kingrea/paneler/internal/workflow"
)

const (
	moduleID      = "verify-splits"
	moduleVersion = "1.0.0"
)

// Module checks the exported files for overlap.
type Module struct {
	*module.Base
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
func New() *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Verify Splits",
		Description: "Checks the exported panels and sets for shared or missing records.",
		Version:     moduleVersion,
	}
	base := module.NewBase(info)
	base.SetInputs(artifact.PanelsJSON, artifact.PanelsManifest, artifact.SplitsManifest)
	base.SetOutputs(artifact.VerifiedMarker)
	return &Module{Base: &base}
}

// IsComplete reports whether the verified marker exists.
func (m *Module) IsComplete(ctx *module.ModuleContext) (bool, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return false, err
	}
	return runtime.OutputsReady(ctx, moduleID, m.Outputs()...)
}

// Run verifies the exports and writes the marker when they are clean.
func (m *Module) Run(ctx *module.ModuleContext) (module.Result, error) {
	if err := ctx.Validate(moduleID); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	}
	if missing, err := m.MissingInputs(ctx); err != nil {
		return module.Result{Status: module.StatusFailed}, err
	} else if len(missing) > 0 {
		return module.Result{Status: module.StatusNeedsInput, Message: runtime.WaitingFor(missing)}, nil
	}
	if err := ctx.Artifacts.Remove(artifact.VerifiedMarker); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: clear marker: %w", moduleID, err)
	}
	panelsDoc, err := runtime.ReadPanels(ctx)
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	wf := ctx.Workflow
	panelFiles, err := readManifest(wf.PanelsManifestPath(), wf.PanelsDir())
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}
	setFiles, err := readManifest(wf.SplitsManifestPath(), wf.SplitsDir())
	if err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: %w", moduleID, err)
	}

	var problems []string
	panelReport := split.CheckOverlap(named(panelFiles))
	if !panelReport.Clean() {
		problems = append(problems, "panels: "+describe(panelReport))
	}
	setReport := split.CheckOverlap(named(setFiles))
	if !setReport.Clean() {
		problems = append(problems, "sets: "+describe(setReport))
	}
	for _, f := range append(append([]exportedFile{}, panelFiles...), setFiles...) {
		if len(f.keys) != f.entry.Records {
			problems = append(problems, fmt.Sprintf("%s holds %d records, manifest says %d", f.entry.File, len(f.keys), f.entry.Records))
		}
	}
	problems = append(problems, coverage(panelsDoc, setFiles)...)

	log := ctx.Logger.With(moduleID)
	if len(problems) > 0 {
		for _, p := range problems {
			log.Printf("%s", p)
		}
		return module.Result{
			Status:   module.StatusFailed,
			Message:  fmt.Sprintf("%d problem(s) in exported files", len(problems)),
			Warnings: problems,
		}, nil
	}
	if err := ctx.Artifacts.Write(artifact.VerifiedMarker, nil, artifact.Metadata{}); err != nil {
		return module.Result{Status: module.StatusFailed}, fmt.Errorf("%s: write marker: %w", moduleID, err)
	}
	msg := fmt.Sprintf("%d panel file(s) and %d set file(s) verified; %s", len(panelFiles), len(setFiles), setReport)
	log.Printf("%s", msg)
	return module.Result{Status: module.StatusCompleted, Message: msg}, nil
}

type exportedFile struct {
	entry workflow.ExportEntry
	keys  []int
}

func readManifest(path, dir string) ([]exportedFile, error) {
	manifest, err := workflow.LoadExportManifest(path)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(manifest.Format)
	if err != nil {
		return nil, err
	}
	out := make([]exportedFile, 0, len(manifest.Files))
	for _, entry := range manifest.Files {
		keys, err := export.ReadKeys(filepath.Join(dir, entry.File), format)
		if err != nil {
			return nil, err
		}
		out = append(out, exportedFile{entry: entry, keys: keys})
	}
	return out, nil
}

func named(files []exportedFile) []split.NamedKeys {
	out := make([]split.NamedKeys, len(files))
	for i, f := range files {
		out[i] = split.NamedKeys{Name: f.entry.File, Keys: f.keys}
	}
	return out
}

func describe(report split.OverlapReport) string {
	parts := make([]string, 0, len(report.Overlaps))
	for _, o := range report.Overlaps {
		parts = append(parts, fmt.Sprintf("%s and %s share %d record(s)", o.A, o.B, len(o.Keys)))
	}
	return strings.Join(parts, "; ")
}

// coverage checks that each panel's sets hold exactly the panel's records.
func coverage(panels runtime.PanelsDoc, sets []exportedFile) []string {
	byPanel := map[int]dataset.KeySet{}
	for _, f := range sets {
		byPanel[f.entry.Panel] = byPanel[f.entry.Panel].Union(f.keys...)
	}
	var problems []string
	for _, p := range panels.Panels {
		got := byPanel[p.Index]
		want := dataset.NewKeySet(p.Keys...)
		missing := 0
		for _, k := range p.Keys {
			if !got.Has(k) {
				missing++
			}
		}
		extra := 0
		for _, k := range got.Sorted() {
			if !want.Has(k) {
				extra++
			}
		}
		if missing > 0 || extra > 0 {
			problems = append(problems, fmt.Sprintf("panel %d: sets miss %d and add %d record(s)", p.Index, missing, extra))
		}
	}
	return problems
}
