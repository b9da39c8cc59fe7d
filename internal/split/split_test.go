package split

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/dataset"
)

func panelOf(index int, values ...[2]string) allocation.Panel {
	records := make([]dataset.Record, len(values))
	for i, v := range values {
		records[i] = dataset.Record{
			Key:    index*1000 + i,
			Values: map[string]string{"Gender": v[0], "Zone": v[1]},
		}
	}
	return allocation.Panel{Index: index, Records: records}
}

func uniform(index, n int) allocation.Panel {
	values := make([][2]string, n)
	for i := range values {
		values[i] = [2]string{"male", "north"}
	}
	return panelOf(index, values...)
}

func mixed(index int) allocation.Panel {
	var values [][2]string
	for _, g := range []string{"male", "female"} {
		for _, z := range []string{"north", "south", "east"} {
			for i := 0; i < 4; i++ {
				values = append(values, [2]string{g, z})
			}
		}
	}
	return panelOf(index, values...)
}

var features = []string{"Gender", "Zone"}

func sortedKeys(sets []Set) []int {
	var keys []int
	for _, s := range sets {
		keys = append(keys, s.Keys()...)
	}
	sort.Ints(keys)
	return keys
}

func TestSplitSingleStratumEvenly(t *testing.T) {
	panel := uniform(1, 9)
	sets, stats, err := Split(panel, nil, features, 3, 42)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	for _, s := range sets {
		assert.Len(t, s.Records, 3)
	}
	assert.Equal(t, []int{3, 3, 3}, stats.SetSizes)
	want := panel.Keys()
	sort.Ints(want)
	assert.Equal(t, want, sortedKeys(sets))
}

func TestSplitUnevenSizesDifferByOne(t *testing.T) {
	panel := uniform(1, 10)
	sets, _, err := Split(panel, nil, features, 3, 42)
	require.NoError(t, err)
	sizes := []int{len(sets[0].Records), len(sets[1].Records), len(sets[2].Records)}
	assert.Equal(t, []int{4, 3, 3}, sizes)
	want := panel.Keys()
	sort.Ints(want)
	assert.Equal(t, want, sortedKeys(sets))
}

func TestSplitRestartsEachStratumAtFirstSet(t *testing.T) {
	single := panelOf(1,
		[2]string{"a", "1"}, [2]string{"b", "1"}, [2]string{"c", "1"},
		[2]string{"d", "1"}, [2]string{"e", "1"},
	)
	sets, stats, err := Split(single, nil, features, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 0}, stats.SetSizes)
	assert.Len(t, sets[1].Records, 0)
	assert.Equal(t, CursorReset, stats.Cursor)

	triples := panelOf(2,
		[2]string{"a", "1"}, [2]string{"a", "1"}, [2]string{"a", "1"},
		[2]string{"b", "1"}, [2]string{"b", "1"}, [2]string{"b", "1"},
	)
	_, stats, err = Split(triples, nil, features, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, stats.SetSizes)
}

func TestSplitCarryCursorKeepsSizesWithinOne(t *testing.T) {
	single := panelOf(1,
		[2]string{"a", "1"}, [2]string{"b", "1"}, [2]string{"c", "1"},
		[2]string{"d", "1"}, [2]string{"e", "1"},
	)
	_, stats, err := Split(single, nil, features, 2, 1, WithCursor(CursorCarry))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, stats.SetSizes)
	assert.Equal(t, CursorCarry, stats.Cursor)

	triples := panelOf(2,
		[2]string{"a", "1"}, [2]string{"a", "1"}, [2]string{"a", "1"},
		[2]string{"b", "1"}, [2]string{"b", "1"}, [2]string{"b", "1"},
	)
	sets, stats, err := Split(triples, nil, features, 2, 1, WithCursor(CursorCarry))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, stats.SetSizes)
	want := triples.Keys()
	sort.Ints(want)
	assert.Equal(t, want, sortedKeys(sets))
}

func TestParseCursor(t *testing.T) {
	for in, want := range map[string]Cursor{"": CursorReset, "reset": CursorReset, " Carry ": CursorCarry} {
		got, err := ParseCursor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCursor("sideways")
	assert.Error(t, err)
}

func TestSplitBalancesEachStratum(t *testing.T) {
	panel := mixed(1)
	targets := allocation.Targets{"Gender": {"male": 0.5, "female": 0.5}}
	sets, stats, err := Split(panel, targets, features, 2, 8)
	require.NoError(t, err)
	for _, s := range sets {
		require.Len(t, s.Records, 12)
		cells := map[string]int{}
		for _, rec := range s.Records {
			cells[rec.Values["Gender"]+rec.Values["Zone"]]++
		}
		for cell, n := range cells {
			assert.Equal(t, 2, n, "set %d cell %s", s.Index, cell)
		}
	}
	assert.Zero(t, stats.MaxDeviation)
	assert.True(t, stats.Balanced(DefaultBalanceTolerance))
	male := stats.Features["Gender"]["male"]
	require.NotNil(t, male.Target)
	assert.InDelta(t, 0.5, *male.Target, 1e-9)
	assert.Equal(t, []float64{0.5, 0.5}, male.Proportions)
	assert.Nil(t, stats.Features["Zone"]["north"].Target)
}

func TestSplitIsDeterministic(t *testing.T) {
	first, _, err := Split(mixed(1), nil, features, 3, 5)
	require.NoError(t, err)
	second, _, err := Split(mixed(1), nil, features, 3, 5)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].Keys(), second[i].Keys())
	}
}

func TestSplitRejectsBadSetCount(t *testing.T) {
	for _, n := range []int{0, 1, 11} {
		_, _, err := Split(uniform(1, 10), nil, features, n, 1)
		var invalid *InvalidSetCountError
		require.True(t, errors.As(err, &invalid), "n=%d", n)
		assert.Equal(t, n, invalid.NumSets)
	}
}

func TestSplitRejectsMissingFeature(t *testing.T) {
	_, _, err := Split(uniform(1, 4), nil, []string{"Region"}, 2, 1)
	var invalid *dataset.InvalidFeatureError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Region", invalid.Feature)
}

func TestComputeStatsSpread(t *testing.T) {
	sets := []Set{
		{Index: 1, Records: []dataset.Record{{Key: 1, Values: map[string]string{"g": "a"}}, {Key: 2, Values: map[string]string{"g": "a"}}}},
		{Index: 2, Records: []dataset.Record{{Key: 3, Values: map[string]string{"g": "a"}}, {Key: 4, Values: map[string]string{"g": "b"}}}},
	}
	stats, err := ComputeStats(sets, nil, []string{"g"})
	require.NoError(t, err)
	a := stats.Features["g"]["a"]
	assert.Equal(t, []float64{1, 0.5}, a.Proportions)
	assert.InDelta(t, 0.75, a.Mean, 1e-12)
	assert.InDelta(t, 0.25, a.Std, 1e-12)
	assert.InDelta(t, 0.5, a.MaxDeviation, 1e-12)
	assert.InDelta(t, 0.5, stats.MaxDeviation, 1e-12)
	assert.False(t, stats.Balanced(DefaultBalanceTolerance))
}

func TestSplitAllMatchesSequential(t *testing.T) {
	panels := []allocation.Panel{mixed(1), mixed(2), uniform(3, 7)}
	all, stats, err := SplitAll(context.Background(), panels, nil, features, 2, 77, WithCursor(CursorCarry))
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, panel := range panels {
		sets, _, err := Split(panel, nil, features, 2, allocation.DeriveSeed(77, "split", panel.Index), WithCursor(CursorCarry))
		require.NoError(t, err)
		for j := range sets {
			assert.Equal(t, sets[j].Keys(), all[i][j].Keys())
		}
		assert.Equal(t, panel.Index, stats[i].Panel)
		assert.Equal(t, CursorCarry, stats[i].Cursor)
	}
}

func TestSplitAllPropagatesErrors(t *testing.T) {
	_, _, err := SplitAll(context.Background(), []allocation.Panel{mixed(1), uniform(2, 1)}, nil, features, 2, 1)
	var invalid *InvalidSetCountError
	assert.ErrorAs(t, err, &invalid)
}

func TestCheckOverlap(t *testing.T) {
	report := CheckOverlap([]NamedKeys{
		{Name: "a", Keys: []int{1, 2, 3}},
		{Name: "b", Keys: []int{4, 5}},
		{Name: "c", Keys: []int{3, 5, 9}},
	})
	assert.Equal(t, 3, report.Compared)
	require.Len(t, report.Overlaps, 2)
	assert.Equal(t, Overlap{A: "a", B: "c", Keys: []int{3}}, report.Overlaps[0])
	assert.Equal(t, Overlap{A: "b", B: "c", Keys: []int{5}}, report.Overlaps[1])
	assert.False(t, report.Clean())

	assert.True(t, CheckOverlap([]NamedKeys{{Name: "a", Keys: []int{1}}, {Name: "b", Keys: []int{2}}}).Clean())
}
