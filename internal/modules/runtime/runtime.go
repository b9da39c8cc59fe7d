// Package runtime holds the payload types and helpers shared by the pipeline
// modules.
package runtime

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/export"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
)

// Dataset loads the master dataset. A missing file is reported with ok=false
// and no error so the caller can ask for input instead of failing.
func Dataset(ctx *module.ModuleContext) (pool *dataset.Pool, checksum string, ok bool, err error) {
	pool, checksum, err = ctx.Dataset()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	return pool, checksum, true, nil
}

// Format returns the configured export format.
func Format(ctx *module.ModuleContext) (export.Format, error) {
	return export.ParseFormat(ctx.Config.Project.Output.Format)
}

// OutputsReady reports whether every ref exists and passes its checksum.
func OutputsReady(ctx *module.ModuleContext, moduleID string, refs ...artifact.ArtifactRef) (bool, error) {
	for _, ref := range refs {
		result, err := ctx.Artifacts.Check(ref)
		switch result.State {
		case artifact.StateReady:
			continue
		case artifact.StateError:
			if err == nil {
				err = result.Err
			}
			return false, fmt.Errorf("%s: check %s: %w", moduleID, ref.ID, err)
		default:
			return false, nil
		}
	}
	return true, nil
}

// WaitingFor renders the NeedsInput message for missing artifact ids.
func WaitingFor(missing []string) string {
	if len(missing) == 1 {
		return fmt.Sprintf("waiting for %s", missing[0])
	}
	return fmt.Sprintf("waiting for %d inputs: %v", len(missing), missing)
}

// WriteManifest records the exported files of a stage.
func WriteManifest(ctx *module.ModuleContext, ref artifact.ArtifactRef, manifest workflow.ExportManifest, meta artifact.Metadata) error {
	manifest.Sort()
	return ctx.Artifacts.WriteJSON(ref, manifest, meta)
}
