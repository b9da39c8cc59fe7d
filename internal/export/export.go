// Package export writes panels and split sets to delimited files and reads
// them back for verification.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
	"github.com/kingrea/paneler/internal/split"
)

// IndexColumn carries each record's original key in exported files.
const IndexColumn = dataset.IndexColumn

// Format selects the delimiter and file extension of exported files.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// ParseFormat accepts "csv", "tsv" or "" (csv).
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatTSV:
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("export: unknown format %q", value)
	}
}

// Delimiter returns the field separator.
func (f Format) Delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == FormatTSV {
		return "tsv"
	}
	return "csv"
}

// PanelFileName names the file for a 1-based panel index.
func PanelFileName(panel int, f Format) string {
	return fmt.Sprintf("panel_%d.%s", panel, f.Ext())
}

// SetFileName names the file for a 1-based panel and set index.
func SetFileName(panel, set int, f Format) string {
	return fmt.Sprintf("panel_%d_set_%d.%s", panel, set, f.Ext())
}

// PanelSplit groups the sets produced from one panel.
type PanelSplit struct {
	Panel int
	Sets  []split.Set
}

// WritePanels writes one file per panel and returns the paths written.
func WritePanels(dir string, panels []allocation.Panel, columns []string, f Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure %s: %w", dir, err)
	}
	paths := make([]string, 0, len(panels))
	for _, panel := range panels {
		path := filepath.Join(dir, PanelFileName(panel.Index, f))
		if err := WriteRecords(path, columns, panel.Records, f); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteSplits writes one file per set and returns the paths written.
func WriteSplits(dir string, splits []PanelSplit, columns []string, f Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure %s: %w", dir, err)
	}
	var paths []string
	for _, ps := range splits {
		for _, set := range ps.Sets {
			path := filepath.Join(dir, SetFileName(ps.Panel, set.Index, f))
			if err := WriteRecords(path, columns, set.Records, f); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// WriteRecords writes a header of IndexColumn plus columns, then one row per
// record.
func WriteRecords(path string, columns []string, records []dataset.Record, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	w := csv.NewWriter(file)
	w.Comma = f.Delimiter()
	header := append([]string{IndexColumn}, columns...)
	if err := w.Write(header); err != nil {
		file.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	row := make([]string, len(header))
	for _, rec := range records {
		row[0] = strconv.Itoa(rec.Key)
		for i, col := range columns {
			row[i+1] = rec.Values[col]
		}
		if err := w.Write(row); err != nil {
			file.Close()
			return fmt.Errorf("export: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("export: flush %s: %w", path, err)
	}
	return file.Close()
}

// ReadSets loads the keys of every exported set file in dir, ordered by
// panel and set index.
func ReadSets(dir string, f Format) ([]split.NamedKeys, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "panel_*_set_*."+f.Ext()))
	if err != nil {
		return nil, fmt.Errorf("export: list %s: %w", dir, err)
	}
	type entry struct {
		panel, set int
		path       string
	}
	var entries []entry
	for _, path := range matches {
		var p, s int
		if _, err := fmt.Sscanf(filepath.Base(path), "panel_%d_set_%d", &p, &s); err != nil {
			continue
		}
		entries = append(entries, entry{panel: p, set: s, path: path})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].panel != entries[j].panel {
			return entries[i].panel < entries[j].panel
		}
		return entries[i].set < entries[j].set
	})
	out := make([]split.NamedKeys, 0, len(entries))
	for _, e := range entries {
		keys, err := ReadKeys(e.path, f)
		if err != nil {
			return nil, err
		}
		out = append(out, split.NamedKeys{Name: filepath.Base(e.path), Keys: keys})
	}
	return out, nil
}

// ReadKeys returns the IndexColumn values of an exported file in row order.
func ReadKeys(path string, f Format) ([]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer file.Close()
	r := csv.NewReader(file)
	r.Comma = f.Delimiter()
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] != IndexColumn {
		return nil, fmt.Errorf("export: %s: missing %s column", path, IndexColumn)
	}
	keys := make([]int, 0, len(rows)-1)
	for i, row := range rows[1:] {
		key, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("export: %s row %d: %w", path, i+1, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
