package runtime

import (
	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
)

// Each stage fingerprint folds in the one before it, so a settings change
// upstream marks every later stage outdated.

// TargetsFingerprint covers the dataset bytes and the target settings.
func TargetsFingerprint(ctx *module.ModuleContext) (string, error) {
	_, checksum, _, err := Dataset(ctx)
	if err != nil {
		return "", err
	}
	p := ctx.Config.Project
	return module.Fingerprint("targets", checksum, p.Dataset.KeyColumn, p.Features, p.Targets, p.Panels.Count, p.Panels.Size)
}

// PanelsFingerprint adds the draw settings and export format.
func PanelsFingerprint(ctx *module.ModuleContext) (string, error) {
	upstream, err := TargetsFingerprint(ctx)
	if err != nil {
		return "", err
	}
	p := ctx.Config.Project
	return module.Fingerprint("panels", upstream, p.Seed, ctx.Config.RemainderPolicy(), p.Output.Format)
}

// SplitsFingerprint adds the set count and cursor mode.
func SplitsFingerprint(ctx *module.ModuleContext) (string, error) {
	upstream, err := PanelsFingerprint(ctx)
	if err != nil {
		return "", err
	}
	return module.Fingerprint("splits", upstream, ctx.Config.Project.Splits.Sets, ctx.Config.SplitCursor())
}

// ForOutputs maps fp onto every ref that carries metadata.
func ForOutputs(fp string, refs ...artifact.ArtifactRef) map[string]string {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if ref.Kind.CarriesMetadata() {
			out[ref.ID] = fp
		}
	}
	return out
}
