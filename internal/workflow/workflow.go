// internal/workflow/workflow.go
//
// Defines the run directory structure and file constants.
// All pipeline artifacts are stored in .paneler/run/ unless output.dir
// points somewhere else.

package workflow

import (
	"os"
	"path/filepath"
)

// Directory names within the run directory
const (
	PanelsDir = "panels"
	SplitsDir = "splits"
)

// File names for pipeline artifacts
const (
	FileTargets  = "targets.json"
	FilePanels   = "panels.json"
	FileSplits   = "splits.json"
	FileManifest = "manifest.json"
	FileSummary  = "SUMMARY.md"
	FileReport   = "paneling_summary_report.txt"
	FileMetrics  = "metrics.prom"
)

// Marker files (empty files that signal stage completion)
const (
	MarkerVerified = ".verified"
)

// Workflow manages the run directory structure
type Workflow struct {
	// Base path to the run directory
	runDir string
}

// New creates a new Workflow manager
func New(runDir string) *Workflow {
	return &Workflow{
		runDir: runDir,
	}
}

// Dir returns the run directory path
func (w *Workflow) Dir() string {
	return w.runDir
}

// TargetsPath returns the path to targets.json (adjusted targets)
func (w *Workflow) TargetsPath() string {
	return filepath.Join(w.Dir(), FileTargets)
}

// PanelsPath returns the path to panels.json
func (w *Workflow) PanelsPath() string {
	return filepath.Join(w.Dir(), FilePanels)
}

// SplitsPath returns the path to splits.json
func (w *Workflow) SplitsPath() string {
	return filepath.Join(w.Dir(), FileSplits)
}

// PanelsDir returns the directory holding exported panel files
func (w *Workflow) PanelsDir() string {
	return filepath.Join(w.Dir(), PanelsDir)
}

// SplitsDir returns the directory holding exported set files
func (w *Workflow) SplitsDir() string {
	return filepath.Join(w.Dir(), SplitsDir)
}

// PanelsManifestPath lists the exported panel files
func (w *Workflow) PanelsManifestPath() string {
	return filepath.Join(w.PanelsDir(), FileManifest)
}

// SplitsManifestPath lists the exported set files
func (w *Workflow) SplitsManifestPath() string {
	return filepath.Join(w.SplitsDir(), FileManifest)
}

// SummaryPath returns the path to SUMMARY.md
func (w *Workflow) SummaryPath() string {
	return filepath.Join(w.Dir(), FileSummary)
}

// ReportPath returns the path to the plain-text summary report
func (w *Workflow) ReportPath() string {
	return filepath.Join(w.Dir(), FileReport)
}

// MetricsPath returns the path to the Prometheus text file
func (w *Workflow) MetricsPath() string {
	return filepath.Join(w.Dir(), FileMetrics)
}

// VerifiedPath returns the marker written after a clean overlap check
func (w *Workflow) VerifiedPath() string {
	return filepath.Join(w.SplitsDir(), MarkerVerified)
}

// Initialize creates the run directory structure
func (w *Workflow) Initialize() error {
	dirs := []string{
		w.Dir(),
		w.PanelsDir(),
		w.SplitsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// WriteMarker creates an empty marker file
func (w *Workflow) WriteMarker(dir, marker string) error {
	path := filepath.Join(dir, marker)
	return os.WriteFile(path, []byte{}, 0644)
}

// HasMarker checks if a marker file exists
func (w *Workflow) HasMarker(dir, marker string) bool {
	info, err := os.Stat(filepath.Join(dir, marker))
	return err == nil && !info.IsDir()
}

// ClearPanels empties the panel export directory.
func (w *Workflow) ClearPanels() error {
	return clearDir(w.PanelsDir())
}

// ClearSplits removes exported set files so a re-split never leaves stale
// sets from a larger N behind.
func (w *Workflow) ClearSplits() error {
	return clearDir(w.SplitsDir())
}

func clearDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// Reset removes the entire run directory (for starting fresh)
func (w *Workflow) Reset() error {
	return os.RemoveAll(w.Dir())
}
