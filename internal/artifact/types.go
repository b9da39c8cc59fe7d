// Package artifact defines the filesystem-level contracts (inputs/outputs)
// that pipeline modules exchange. Each artifact has a stable identifier, kind,
// and a resolver that maps to the actual path within the run directory.

package artifact

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/kingrea/paneler/internal/workflow"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument represents a markdown document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON object enriched with a _paneler metadata block.
	KindJSON Kind = "json"
	// KindText represents a plain file written verbatim, without metadata.
	KindText Kind = "text"
	// KindMarker represents an empty file used as a marker/flag.
	KindMarker Kind = "marker"
)

// CarriesMetadata reports whether artifacts of this kind embed provenance.
func (k Kind) CarriesMetadata() bool {
	return k == KindDocument || k == KindJSON
}

// PathResolver returns the fully-qualified path to an artifact for the current run.
type PathResolver func(*workflow.Workflow) string

// ArtifactRef declares a stable identifier and metadata for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	path        PathResolver
}

// Path resolves the artifact path for the provided workflow instance.
func (r ArtifactRef) Path(wf *workflow.Workflow) string {
	if wf == nil || r.path == nil {
		return ""
	}
	return filepath.Clean(r.path(wf))
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside artifact frontmatter or metadata blocks.
type Metadata struct {
	ArtifactID string
	ModuleID   string
	Version    string
	Workflow   string
	Inputs     []string
	CreatedAt  time.Time
	Checksum   string
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref ArtifactRef, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref ArtifactRef) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.ModuleID == "" {
		return fmt.Errorf("artifact: module id is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      ArtifactRef
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

// helper to register global references
func register(ref ArtifactRef) ArtifactRef {
	if refs == nil {
		refs = map[string]ArtifactRef{}
	}
	refs[ref.ID] = ref
	return ref
}

var refs map[string]ArtifactRef

// Lookup returns a registered artifact reference by ID.
func Lookup(id string) (ArtifactRef, bool) {
	ref, ok := refs[id]
	return ref, ok
}

// All returns every registered reference sorted by ID.
func All() []ArtifactRef {
	out := make([]ArtifactRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newRef(kind Kind, id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        kind,
		path:        resolver,
	}
}

// Canonical artifact references for the paneling pipeline.
var (
	TargetsJSON = register(newRef(KindJSON, "adjusted-targets", "Adjusted Targets",
		"targets.json with ideal targets, availability report and adjusted targets",
		func(wf *workflow.Workflow) string { return wf.TargetsPath() }))

	PanelsJSON = register(newRef(KindJSON, "panels-json", "Panels",
		"panels.json with the record keys and statistics of every panel",
		func(wf *workflow.Workflow) string { return wf.PanelsPath() }))
	PanelsManifest = register(newRef(KindJSON, "panels-manifest", "Panel Exports",
		"panels/manifest.json listing the exported panel files",
		func(wf *workflow.Workflow) string { return wf.PanelsManifestPath() }))

	SplitsJSON = register(newRef(KindJSON, "splits-json", "Splits",
		"splits.json with the record keys of every set and split statistics",
		func(wf *workflow.Workflow) string { return wf.SplitsPath() }))
	SplitsManifest = register(newRef(KindJSON, "splits-manifest", "Set Exports",
		"splits/manifest.json listing the exported set files",
		func(wf *workflow.Workflow) string { return wf.SplitsManifestPath() }))

	SummaryDoc = register(newRef(KindDocument, "summary-doc", "Run Summary",
		"SUMMARY.md describing the run",
		func(wf *workflow.Workflow) string { return wf.SummaryPath() }))
	SummaryReport = register(newRef(KindText, "summary-report", "Summary Report",
		"plain-text paneling summary report",
		func(wf *workflow.Workflow) string { return wf.ReportPath() }))
	MetricsFile = register(newRef(KindText, "metrics-file", "Run Metrics",
		"metrics.prom in the Prometheus text format",
		func(wf *workflow.Workflow) string { return wf.MetricsPath() }))

	VerifiedMarker = register(newRef(KindMarker, "splits-verified", "Splits Verified Marker",
		"Marker written when no record appears in two exported sets",
		func(wf *workflow.Workflow) string { return wf.VerifiedPath() }))
)
