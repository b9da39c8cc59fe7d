package allocation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/paneler/internal/dataset"
)

func genderPool(male, female int) *dataset.Pool {
	rows := make([]map[string]any, 0, male+female)
	for i := 0; i < male; i++ {
		rows = append(rows, map[string]any{"Gender": "male"})
	}
	for i := 0; i < female; i++ {
		rows = append(rows, map[string]any{"Gender": "female"})
	}
	return dataset.FromRows(rows)
}

func gridPool(perCell int) *dataset.Pool {
	var rows []map[string]any
	for _, g := range []string{"male", "female"} {
		for _, z := range []string{"north", "south"} {
			for i := 0; i < perCell; i++ {
				rows = append(rows, map[string]any{"Gender": g, "Zone": z, "Age": 20 + i})
			}
		}
	}
	return dataset.FromRows(rows)
}

var halfHalf = Targets{"Gender": {"male": 0.5, "female": 0.5}}

func countBy(t *testing.T, records []dataset.Record, feature string) map[string]int {
	t.Helper()
	counts, err := dataset.Counts(records, feature)
	require.NoError(t, err)
	return counts
}

func TestAdjustKeepsSatisfiableTargets(t *testing.T) {
	adjusted, report, err := Adjust(genderPool(6, 4), halfHalf, []string{"Gender"}, 2, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, adjusted["Gender"]["female"], 1e-9)
	assert.InDelta(t, 0.5, adjusted["Gender"]["male"], 1e-9)
	assert.Empty(t, report.Warnings())
}

func TestAdjustLowersScarceCategory(t *testing.T) {
	adjusted, report, err := Adjust(genderPool(8, 2), halfHalf, []string{"Gender"}, 2, 4)
	require.NoError(t, err)
	// female: (2/2)/4 = 0.25, male stays 0.5, then both are rescaled.
	assert.InDelta(t, 1.0/3.0, adjusted["Gender"]["female"], 1e-9)
	assert.InDelta(t, 2.0/3.0, adjusted["Gender"]["male"], 1e-9)
	require.Len(t, report.Warnings(), 1)
	for _, e := range report.Entries {
		if e.Category == "female" {
			assert.InDelta(t, 4.0, e.IdealTotal, 1e-9)
			assert.Equal(t, 2, e.Available)
			assert.InDelta(t, 0.25, e.Adjusted, 1e-9)
		}
	}
}

func TestAdjustNormalizesEveryFeature(t *testing.T) {
	targets := Targets{
		"Gender": {"male": 0.7, "female": 0.3},
		"Zone":   {"north": 0.2, "south": 0.6, "east": 0.2},
	}
	adjusted, _, err := Adjust(gridPool(3), targets, []string{"Gender", "Zone"}, 3, 4)
	require.NoError(t, err)
	for _, feature := range []string{"Gender", "Zone"} {
		assert.InDelta(t, 1.0, adjusted.Sum(feature), 1e-9, feature)
	}
	// east never occurs, so it drops to zero.
	assert.Zero(t, adjusted["Zone"]["east"])
}

func TestAdjustFallsBackToIdealWhenNothingAvailable(t *testing.T) {
	targets := Targets{"Gender": {"x": 0.25, "y": 0.75}}
	adjusted, _, err := Adjust(genderPool(5, 5), targets, []string{"Gender"}, 1, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, adjusted["Gender"]["x"], 1e-9)
	assert.InDelta(t, 0.75, adjusted["Gender"]["y"], 1e-9)
}

func TestAdjustDoesNotTouchPool(t *testing.T) {
	pool := genderPool(8, 2)
	before := pool.Records()
	_, _, err := Adjust(pool, halfHalf, []string{"Gender"}, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, before, pool.Records())
}

func TestCreatePanelsBalancedPool(t *testing.T) {
	result, err := CreatePanels(genderPool(6, 4), halfHalf, PanelOptions{
		Features: []string{"Gender"}, NumPanels: 2, PanelSize: 4, Seed: 42,
	})
	require.NoError(t, err)
	require.Len(t, result.Panels, 2)
	for _, panel := range result.Panels {
		require.Equal(t, 4, panel.Len())
		counts := countBy(t, panel.Records, "Gender")
		assert.Equal(t, 2, counts["male"])
		assert.Equal(t, 2, counts["female"])
	}
	assertDisjoint(t, result.Panels)
}

func TestCreatePanelsSpreadsScarceCategory(t *testing.T) {
	result, err := CreatePanels(genderPool(8, 2), halfHalf, PanelOptions{
		Features: []string{"Gender"}, NumPanels: 2, PanelSize: 4, Seed: 7,
	})
	require.NoError(t, err)
	for _, panel := range result.Panels {
		counts := countBy(t, panel.Records, "Gender")
		assert.Equal(t, 1, counts["female"], "panel %d", panel.Index)
		assert.Equal(t, 3, counts["male"], "panel %d", panel.Index)
	}
	st := result.Stats[0].Features["Gender"]["female"]
	assert.InDelta(t, 0.5, st.Target, 1e-9)
	assert.InDelta(t, 1.0/3.0, st.AdjustedTarget, 1e-9)
	assert.InDelta(t, 0.25, st.Actual, 1e-9)
	assert.InDelta(t, 0.25-1.0/3.0, st.Deviation, 1e-9)
	assert.InDelta(t, -0.25, st.DeviationFromIdeal, 1e-9)
}

func TestCreatePanelsCascadesAcrossFeatures(t *testing.T) {
	targets := Targets{
		"Gender": {"male": 0.5, "female": 0.5},
		"Zone":   {"north": 0.5, "south": 0.5},
	}
	result, err := CreatePanels(gridPool(10), targets, PanelOptions{
		Features: []string{"Gender", "Zone"}, NumPanels: 3, PanelSize: 8, Seed: 1,
	})
	require.NoError(t, err)
	for _, panel := range result.Panels {
		cells := map[string]int{}
		for _, rec := range panel.Records {
			cells[rec.Values["Gender"]+"/"+rec.Values["Zone"]]++
		}
		for cell, n := range cells {
			assert.Equal(t, 2, n, "panel %d cell %s", panel.Index, cell)
		}
		assert.Zero(t, result.Stats[panel.Index-1].MaxDeviation)
	}
	assertDisjoint(t, result.Panels)
}

func TestCreatePanelsIsDeterministic(t *testing.T) {
	opts := PanelOptions{Features: []string{"Gender", "Zone"}, NumPanels: 4, PanelSize: 6, Seed: 99}
	targets := Targets{
		"Gender": {"male": 0.6, "female": 0.4},
		"Zone":   {"north": 0.3, "south": 0.7},
	}
	first, err := CreatePanels(gridPool(10), targets, opts)
	require.NoError(t, err)
	second, err := CreatePanels(gridPool(10), targets, opts)
	require.NoError(t, err)
	for i := range first.Panels {
		assert.Equal(t, first.Panels[i].Keys(), second.Panels[i].Keys())
	}
}

func TestCreatePanelsExclusionSetMatchesPanels(t *testing.T) {
	var progress []string
	result, err := CreatePanels(gridPool(10), Targets{
		"Gender": {"male": 0.5, "female": 0.5},
	}, PanelOptions{
		Features: []string{"Gender"}, NumPanels: 5, PanelSize: 7, Seed: 3,
		Progress: func(done, total int) { progress = append(progress, fmt.Sprintf("%d/%d", done, total)) },
	})
	require.NoError(t, err)
	total := 0
	for _, panel := range result.Panels {
		total += panel.Len()
		for _, key := range panel.Keys() {
			assert.True(t, result.Excluded.Has(key))
		}
	}
	assert.Equal(t, total, result.Excluded.Len())
	assert.Equal(t, []string{"1/5", "2/5", "3/5", "4/5", "5/5"}, progress)
}

func TestCreatePanelsCapacityError(t *testing.T) {
	_, err := CreatePanels(genderPool(5, 4), halfHalf, PanelOptions{
		Features: []string{"Gender"}, NumPanels: 2, PanelSize: 5,
	})
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 10, capErr.Requested)
	assert.Equal(t, 9, capErr.Available)
	assert.Equal(t, 1, capErr.Shortfall())
	assert.Contains(t, capErr.Error(), "short by 1")
}

func TestCreatePanelsInvalidFeature(t *testing.T) {
	_, err := CreatePanels(genderPool(5, 5), Targets{"Region": {"a": 1}}, PanelOptions{
		Features: []string{"Region"}, NumPanels: 1, PanelSize: 2,
	})
	var invalid *dataset.InvalidFeatureError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Region", invalid.Feature)
}

func TestCreatePanelsMissingTargets(t *testing.T) {
	_, err := CreatePanels(genderPool(5, 5), Targets{}, PanelOptions{
		Features: []string{"Gender"}, NumPanels: 1, PanelSize: 2,
	})
	assert.ErrorIs(t, err, ErrMissingTargets)
}

func TestSampleShortPoolWarns(t *testing.T) {
	pool := genderPool(3, 2)
	draw, err := Sample(pool, dataset.KeySet{}, halfHalf, []string{"Gender"}, 8, 1)
	require.NoError(t, err)
	assert.Len(t, draw.Keys, 5)
	require.NotNil(t, draw.Warning)
	assert.Equal(t, 8, draw.Warning.Requested)
	assert.Equal(t, 5, draw.Warning.Selected)
}

func TestSampleRespectsExclusions(t *testing.T) {
	pool := genderPool(4, 4)
	excluded := dataset.NewKeySet(0, 1, 4, 5)
	draw, err := Sample(pool, excluded, halfHalf, []string{"Gender"}, 4, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 3, 6, 7}, draw.Keys)
	assert.Equal(t, 4, excluded.Len(), "input set must not grow")
	assert.Equal(t, 8, draw.Excluded.Len())
}

func TestSampleRemainderPolicy(t *testing.T) {
	pool := genderPool(10, 1)

	filled, err := Sample(pool, dataset.KeySet{}, halfHalf, []string{"Gender"}, 4, 2)
	require.NoError(t, err)
	assert.Len(t, filled.Keys, 4)
	assert.Equal(t, 1, filled.Remainder)
	assert.Nil(t, filled.Warning)

	skipped, err := Sample(pool, dataset.KeySet{}, halfHalf, []string{"Gender"}, 4, 2, WithRemainder(RemainderSkip))
	require.NoError(t, err)
	assert.Len(t, skipped.Keys, 3)
	assert.Zero(t, skipped.Remainder)
	require.NotNil(t, skipped.Warning)
}

func TestSampleRoundsHalfToEven(t *testing.T) {
	// 0.5 * 5 = 2.5 rounds to 2 for both categories, leaving one slot that
	// only the remainder fill can use.
	pool := genderPool(10, 10)
	draw, err := Sample(pool, dataset.KeySet{}, halfHalf, []string{"Gender"}, 5, 11, WithRemainder(RemainderSkip))
	require.NoError(t, err)
	recs, err := pool.Select(draw.Keys)
	require.NoError(t, err)
	counts := countBy(t, recs, "Gender")
	assert.Equal(t, 2, counts["female"])
	assert.Equal(t, 2, counts["male"])
	require.NotNil(t, draw.Warning)

	filled, err := Sample(pool, dataset.KeySet{}, halfHalf, []string{"Gender"}, 5, 11)
	require.NoError(t, err)
	assert.Len(t, filled.Keys, 5)
	assert.Equal(t, 1, filled.Remainder)
}

func TestTargetsValidate(t *testing.T) {
	assert.NoError(t, halfHalf.Validate([]string{"Gender"}))
	assert.NoError(t, Targets{"g": {"a": 0.333, "b": 0.333, "c": 0.333}}.Validate([]string{"g"}))
	assert.Error(t, Targets{"g": {"a": 0.5, "b": 0.3}}.Validate([]string{"g"}))
	assert.Error(t, Targets{"g": {"a": 1.5, "b": -0.5}}.Validate([]string{"g"}))
	assert.ErrorIs(t, halfHalf.Validate([]string{"Zone"}), ErrMissingTargets)
}

func TestDeriveSeedIsStable(t *testing.T) {
	assert.Equal(t, DeriveSeed(42, "panel", 1), DeriveSeed(42, "panel", 1))
	assert.NotEqual(t, DeriveSeed(42, "panel", 1), DeriveSeed(42, "panel", 2))
	assert.NotEqual(t, DeriveSeed(42, "panel", 1), DeriveSeed(43, "panel", 1))
}

func TestMaxPossiblePanels(t *testing.T) {
	assert.Equal(t, 3, MaxPossiblePanels(genderPool(5, 5), 3))
	assert.Zero(t, MaxPossiblePanels(genderPool(5, 5), 0))
}

func TestParseRemainderPolicy(t *testing.T) {
	p, err := ParseRemainderPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemainderRandom, p)
	p, err = ParseRemainderPolicy(" Skip ")
	require.NoError(t, err)
	assert.Equal(t, RemainderSkip, p)
	_, err = ParseRemainderPolicy("strata")
	assert.Error(t, err)
}

func assertDisjoint(t *testing.T, panels []Panel) {
	t.Helper()
	seen := map[int]int{}
	for _, panel := range panels {
		for _, key := range panel.Keys() {
			if prev, ok := seen[key]; ok {
				t.Fatalf("key %d in panel %d and panel %d", key, prev, panel.Index)
			}
			seen[key] = panel.Index
		}
	}
}
