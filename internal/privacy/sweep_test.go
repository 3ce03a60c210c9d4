package privacy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/tests/helpers"
)

func TestDefaultGrid(t *testing.T) {
	want := []RunConfig{
		{K: 2, L: 2},
		{K: 4, L: 2}, {K: 4, L: 3}, {K: 4, L: 4},
		{K: 8, L: 2}, {K: 8, L: 3}, {K: 8, L: 4},
	}
	if diff := cmp.Diff(want, DefaultGrid()); diff != "" {
		t.Errorf("DefaultGrid() mismatch (-want +got):\n%s", diff)
	}
}

func TestGridKeepsLAboveK(t *testing.T) {
	want := []RunConfig{
		{K: 1, L: 1}, {K: 1, L: 2}, {K: 1, L: 4},
		{K: 3, L: 1}, {K: 3, L: 2}, {K: 3, L: 4},
	}
	if diff := cmp.Diff(want, Grid([]int{1, 3}, []int{1, 2, 4})); diff != "" {
		t.Errorf("Grid() mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepRunsEachConfigurationOnItsOwnCopy(t *testing.T) {
	env := helpers.NewTestEnvironment(t)
	input := helpers.ScenarioDataset()
	snapshot := input.Clone()

	results, err := newTestAnonymizer().Sweep(env.Context, input, []RunConfig{
		{K: 4},
		{K: 2},
		{K: 3, L: 3},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, 3, results[0].Level)

	// a stricter earlier run must not leak its levels into the next one
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.Equal(t, 1, results[1].Level)
	assert.Greater(t, results[1].Precision.Precision, results[0].Precision.Precision)

	assert.Equal(t, StatusFailure, results[2].Status)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)

	assert.Equal(t, snapshot, input)
}

func TestSweepStopsOnInvalidConfiguration(t *testing.T) {
	env := helpers.NewTestEnvironment(t)

	results, err := newTestAnonymizer().Sweep(env.Context, helpers.ScenarioDataset(), []RunConfig{{K: 2}, {K: 0}, {K: 3}})
	require.Error(t, err)
	assert.Len(t, results, 1)
}
