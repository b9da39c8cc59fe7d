package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExportEntry is one exported data file recorded in a manifest. Set is zero
// for whole-panel files.
type ExportEntry struct {
	Panel   int    `json:"panel"`
	Set     int    `json:"set,omitempty"`
	File    string `json:"file"`
	Records int    `json:"records"`
}

// ExportManifest lists the files a stage wrote into its directory. File names
// are relative to the manifest.
type ExportManifest struct {
	Format string        `json:"format"`
	Files  []ExportEntry `json:"files"`
}

// LoadExportManifest reads a manifest. Both the bare file list and the
// enveloped form written by the artifact store are accepted.
func LoadExportManifest(path string) (ExportManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExportManifest{}, err
	}
	trimmed := strings.TrimSpace(string(data))
	var manifest ExportManifest
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &manifest.Files); err != nil {
			return ExportManifest{}, fmt.Errorf("failed to parse export manifest: %w", err)
		}
	} else if err := json.Unmarshal(data, &manifest); err != nil {
		return ExportManifest{}, fmt.Errorf("failed to parse export manifest: %w", err)
	}
	for i, entry := range manifest.Files {
		normalized, err := entry.Normalize()
		if err != nil {
			return ExportManifest{}, fmt.Errorf("export manifest %s entry %d: %w", path, i, err)
		}
		manifest.Files[i] = normalized
	}
	manifest.Sort()
	return manifest, nil
}

// Encode renders the manifest as JSON.
func (m ExportManifest) Encode() ([]byte, error) {
	m.Sort()
	return json.MarshalIndent(m, "", "  ")
}

// Sort orders entries by panel then set.
func (m ExportManifest) Sort() {
	sort.SliceStable(m.Files, func(i, j int) bool {
		if m.Files[i].Panel != m.Files[j].Panel {
			return m.Files[i].Panel < m.Files[j].Panel
		}
		return m.Files[i].Set < m.Files[j].Set
	})
}

// Paths resolves every file against dir.
func (m ExportManifest) Paths(dir string) []string {
	out := make([]string, 0, len(m.Files))
	for _, entry := range m.Files {
		out = append(out, filepath.Join(dir, entry.File))
	}
	return out
}

// Normalize ensures essential fields are present.
func (e ExportEntry) Normalize() (ExportEntry, error) {
	e.File = strings.TrimSpace(e.File)
	if e.File == "" {
		return ExportEntry{}, errors.New("export entry missing file")
	}
	if filepath.IsAbs(e.File) || strings.Contains(e.File, "..") {
		return ExportEntry{}, fmt.Errorf("export entry %s must be relative to its manifest", e.File)
	}
	if e.Panel < 1 {
		return ExportEntry{}, fmt.Errorf("export entry %s has panel %d", e.File, e.Panel)
	}
	return e, nil
}
