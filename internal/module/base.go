package module

import (
	"fmt"

	"github.com/kingrea/paneler/internal/artifact"
)

// Base provides common plumbing for modules (identity + IO contracts).
type Base struct {
	info    Info
	inputs  []artifact.ArtifactRef
	outputs []artifact.ArtifactRef
}

// NewBase seeds the helper with module info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// SetInputs declares the required artifacts.
func (b *Base) SetInputs(refs ...artifact.ArtifactRef) {
	b.inputs = append([]artifact.ArtifactRef{}, refs...)
}

// SetOutputs declares the produced artifacts.
func (b *Base) SetOutputs(refs ...artifact.ArtifactRef) {
	b.outputs = append([]artifact.ArtifactRef{}, refs...)
}

// Info implements Module.Info.
func (b *Base) Info() Info {
	return b.info
}

// Inputs implements Module.Inputs.
func (b *Base) Inputs() []artifact.ArtifactRef {
	return append([]artifact.ArtifactRef{}, b.inputs...)
}

// Outputs implements Module.Outputs.
func (b *Base) Outputs() []artifact.ArtifactRef {
	return append([]artifact.ArtifactRef{}, b.outputs...)
}

// InputIDs lists the declared input artifact ids, for provenance metadata.
func (b *Base) InputIDs() []string {
	ids := make([]string, 0, len(b.inputs))
	for _, ref := range b.inputs {
		ids = append(ids, ref.ID)
	}
	return ids
}

// MissingInputs returns the ids of declared inputs that are not ready on disk.
func (b *Base) MissingInputs(ctx *ModuleContext) ([]string, error) {
	var missing []string
	for _, ref := range b.inputs {
		result, err := ctx.Artifacts.Check(ref)
		if result.State == artifact.StateError {
			return nil, fmt.Errorf("%s: check %s: %w", b.info.ID, ref.ID, err)
		}
		if result.State != artifact.StateReady {
			missing = append(missing, ref.ID)
		}
	}
	return missing, nil
}

// Metadata returns provenance for an output written by this module.
func (b *Base) Metadata(ctx *ModuleContext, ref artifact.ArtifactRef, fingerprint string) artifact.Metadata {
	meta := artifact.Metadata{
		ArtifactID: ref.ID,
		ModuleID:   b.info.ID,
		Version:    b.info.Version,
		Inputs:     b.InputIDs(),
	}
	if ctx != nil && ctx.Workflow != nil {
		meta.Workflow = ctx.Workflow.Dir()
	}
	if fingerprint != "" {
		meta.Notes = map[string]string{FingerprintNoteKey(ref.ID): fingerprint}
	}
	return meta
}
