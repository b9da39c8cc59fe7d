package runtime

import (
	"fmt"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/split"
)

// TargetsDoc is the body of targets.json.
type TargetsDoc struct {
	Dataset   string                      `json:"dataset"`
	Checksum  string                      `json:"checksum"`
	PoolSize  int                         `json:"pool_size"`
	Features  []string                    `json:"features"`
	NumPanels int                         `json:"num_panels"`
	PanelSize int                         `json:"panel_size"`
	MaxPanels int                         `json:"max_panels"`
	Master    allocation.Targets          `json:"master"`
	Ideal     allocation.Targets          `json:"ideal"`
	Adjusted  allocation.Targets          `json:"adjusted"`
	Report    allocation.AdjustmentReport `json:"report"`
}

// PanelDoc records one drawn panel by key.
type PanelDoc struct {
	Index int                   `json:"index"`
	Keys  []int                 `json:"keys"`
	Stats allocation.PanelStats `json:"stats"`
}

// PanelsDoc is the body of panels.json.
type PanelsDoc struct {
	Seed      int64                      `json:"seed"`
	Remainder allocation.RemainderPolicy `json:"remainder"`
	Features  []string                   `json:"features"`
	PanelSize int                        `json:"panel_size"`
	Adjusted  allocation.Targets         `json:"adjusted"`
	Panels    []PanelDoc                 `json:"panels"`
}

// NewPanelsDoc captures a CreatePanels result.
func NewPanelsDoc(result allocation.Result, opts allocation.PanelOptions) PanelsDoc {
	doc := PanelsDoc{
		Seed:      opts.Seed,
		Remainder: opts.Remainder,
		Features:  append([]string{}, opts.Features...),
		PanelSize: opts.PanelSize,
		Adjusted:  result.Adjusted.Clone(),
		Panels:    make([]PanelDoc, 0, len(result.Panels)),
	}
	for i, panel := range result.Panels {
		doc.Panels = append(doc.Panels, PanelDoc{Index: panel.Index, Keys: panel.Keys(), Stats: result.Stats[i]})
	}
	return doc
}

// Stats returns the per-panel stats in panel order.
func (d PanelsDoc) Stats() []allocation.PanelStats {
	out := make([]allocation.PanelStats, 0, len(d.Panels))
	for _, p := range d.Panels {
		out = append(out, p.Stats)
	}
	return out
}

// Materialize rebuilds the panels from the pool they were drawn from.
func (d PanelsDoc) Materialize(pool *dataset.Pool) ([]allocation.Panel, error) {
	panels := make([]allocation.Panel, 0, len(d.Panels))
	for _, p := range d.Panels {
		records, err := pool.Select(p.Keys)
		if err != nil {
			return nil, fmt.Errorf("panel %d: %w", p.Index, err)
		}
		panels = append(panels, allocation.Panel{Index: p.Index, Records: records})
	}
	return panels, nil
}

// SplitDoc records the sets produced from one panel.
type SplitDoc struct {
	Panel int         `json:"panel"`
	Sets  [][]int     `json:"sets"`
	Stats split.Stats `json:"stats"`
}

// SplitsDoc is the body of splits.json.
type SplitsDoc struct {
	NumSets int        `json:"num_sets"`
	Seed    int64      `json:"seed"`
	Panels  []SplitDoc `json:"panels"`
}

// NewSplitsDoc captures a SplitAll result. sets and stats are indexed like
// panels.
func NewSplitsDoc(panels []allocation.Panel, sets [][]split.Set, stats []split.Stats, numSets int, seed int64) SplitsDoc {
	doc := SplitsDoc{NumSets: numSets, Seed: seed, Panels: make([]SplitDoc, 0, len(panels))}
	for i, panel := range panels {
		entry := SplitDoc{Panel: panel.Index, Stats: stats[i]}
		for _, set := range sets[i] {
			entry.Sets = append(entry.Sets, set.Keys())
		}
		doc.Panels = append(doc.Panels, entry)
	}
	return doc
}

// Stats returns the per-panel split stats in panel order.
func (d SplitsDoc) Stats() []split.Stats {
	out := make([]split.Stats, 0, len(d.Panels))
	for _, p := range d.Panels {
		out = append(out, p.Stats)
	}
	return out
}

// Materialize rebuilds the sets from the pool.
func (d SplitsDoc) Materialize(pool *dataset.Pool) ([]export.PanelSplit, error) {
	out := make([]export.PanelSplit, 0, len(d.Panels))
	for _, p := range d.Panels {
		ps := export.PanelSplit{Panel: p.Panel}
		for i, keys := range p.Sets {
			records, err := pool.Select(keys)
			if err != nil {
				return nil, fmt.Errorf("panel %d set %d: %w", p.Panel, i+1, err)
			}
			ps.Sets = append(ps.Sets, split.Set{Index: i + 1, Records: records})
		}
		out = append(out, ps)
	}
	return out, nil
}

// ReadTargets loads targets.json.
func ReadTargets(ctx *module.ModuleContext) (TargetsDoc, error) {
	var doc TargetsDoc
	err := ctx.Artifacts.ReadJSON(artifact.TargetsJSON, &doc)
	return doc, err
}

// ReadPanels loads panels.json.
func ReadPanels(ctx *module.ModuleContext) (PanelsDoc, error) {
	var doc PanelsDoc
	err := ctx.Artifacts.ReadJSON(artifact.PanelsJSON, &doc)
	return doc, err
}

// ReadSplits loads splits.json.
func ReadSplits(ctx *module.ModuleContext) (SplitsDoc, error) {
	var doc SplitsDoc
	err := ctx.Artifacts.ReadJSON(artifact.SplitsJSON, &doc)
	return doc, err
}
