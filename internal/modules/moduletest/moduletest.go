// Package moduletest builds project fixtures for pipeline module tests.
package moduletest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/paneler/internal/config"
	"github.com/kingrea/paneler/internal/logbook"
	"github.com/kingrea/paneler/internal/module"
)

// PoolSize is the number of rows written by WriteDataset.
const PoolSize = 40

// Clock returns a fixed time for deterministic metadata.
func Clock() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

// NewContext returns a module context for a temp project configured for two
// panels of ten split into two sets, stratified by Gender and Age. The
// dataset is not written; call WriteDataset.
func NewContext(t *testing.T) *module.ModuleContext {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ProjectDir:        dir,
		PanelerProjectDir: filepath.Join(dir, config.PanelerDir),
		ConfigPath:        filepath.Join(dir, config.PanelerDir, "config.yaml"),
		Project: config.ProjectConfig{
			Version:  1,
			Dataset:  config.DatasetConfig{Path: filepath.Join(dir, "master.csv"), Delimiter: "comma"},
			Features: []string{"Gender", "Age"},
			Targets: map[string]map[string]float64{
				"Gender": {"Female": 0.5, "Male": 0.5},
				"Age":    {"Old": 0.5, "Young": 0.5},
			},
			Panels:    config.PanelsConfig{Count: 2, Size: 10},
			Splits:    config.SplitsConfig{Sets: 2},
			Seed:      42,
			Remainder: "random",
			Output:    config.OutputConfig{Format: "csv"},
		},
	}
	lb, err := logbook.New(cfg.JournalPath())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	return module.NewContext(cfg, lb, nil, nil)
}

// WriteDataset writes PoolSize rows with ten records in every Gender x Age
// stratum.
func WriteDataset(t *testing.T, ctx *module.ModuleContext) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Name,Gender,Age\n")
	for i := 0; i < PoolSize; i++ {
		gender := "Female"
		if i%2 == 1 {
			gender = "Male"
		}
		age := "Young"
		if (i/2)%2 == 1 {
			age = "Old"
		}
		fmt.Fprintf(&b, "person-%02d,%s,%s\n", i, gender, age)
	}
	if err := os.WriteFile(ctx.Config.DatasetPath(), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

// Reload returns a fresh context over the same project so cached dataset
// state is dropped.
func Reload(t *testing.T, ctx *module.ModuleContext) *module.ModuleContext {
	t.Helper()
	return module.NewContext(ctx.Config, ctx.Logbook, ctx.Logger, ctx.Metrics)
}

// RunModule runs mod and fails the test unless it completes.
func RunModule(t *testing.T, ctx *module.ModuleContext, mod module.Module) module.Result {
	t.Helper()
	result, err := mod.Run(ctx)
	if err != nil {
		t.Fatalf("%s: %v", mod.Info().ID, err)
	}
	if result.Status != module.StatusCompleted {
		t.Fatalf("%s: unexpected result %+v", mod.Info().ID, result)
	}
	return result
}
