package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/split"
)

func TestObservePanels(t *testing.T) {
	m := New()
	m.ObservePanels(allocation.Result{
		Report: allocation.AdjustmentReport{Entries: []allocation.Availability{
			{Feature: "g", Category: "a", Shortfall: 2},
			{Feature: "g", Category: "b"},
		}},
		Stats: []allocation.PanelStats{
			{Panel: 1, Size: 4, MaxDeviation: 0.1, Remainder: 1},
			{Panel: 2, Size: 3, Warning: &allocation.InsufficientSamplesWarning{Requested: 4, Selected: 3}},
		},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.panelsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remainderFilled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.shortDraws))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.constrainedCats))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.panelRecords.WithLabelValues("2")))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.ObserveSplits([]split.Stats{{Panel: 1, NumSets: 3, MaxDeviation: 0.05}})
	m.ObserveStage("split-panels", 0.2)
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `paneler_split_max_deviation{panel="1"} 0.05`), out)
	assert.Contains(t, out, "paneler_split_sets_total 3")
	assert.Contains(t, out, `paneler_stage_duration_seconds_count{stage="split-panels"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePanels(allocation.Result{})
	m.ObserveSplits(nil)
	m.ObserveStage("x", 1)
}
