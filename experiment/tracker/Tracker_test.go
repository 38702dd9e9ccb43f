package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/relsac/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func episode(rewards ...[]float64) []ts.TimeStep {
	steps := []ts.TimeStep{ts.New(ts.First, []float64{0, 0}, 1, nil, nil,
		nil, 0)}
	for i, r := range rewards {
		t := ts.Mid
		if i == len(rewards)-1 {
			t = ts.Last
		}
		steps = append(steps, ts.New(t, r, 1, nil, nil, nil, i+1))
	}
	return steps
}

func TestReturn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(path)
	lengths := NewEpisodeLength(filepath.Join(t.TempDir(), "lengths.bin"))

	_, ok := r.LastReturn()
	assert.False(t, ok)

	for _, step := range episode([]float64{1, -1}, []float64{2, 0.5}) {
		r.Track(step)
		lengths.Track(step)
	}
	last, ok := r.LastReturn()
	require.True(t, ok)
	assert.Equal(t, []float64{3, -0.5}, last)

	for _, step := range episode([]float64{-1, -1}) {
		r.Track(step)
		lengths.Track(step)
	}
	assert.Equal(t, [][]float64{{3, -0.5}, {-1, -1}}, r.Returns())
	assert.Equal(t, []int{2, 1}, lengths.Lengths())

	require.NoError(t, r.Save())
	saved, err := LoadData[[][]float64](path)
	require.NoError(t, err)
	assert.Equal(t, r.Returns(), saved)
}

func TestReturnPanicsOnGap(t *testing.T) {
	r := NewReturn("unused")
	steps := episode([]float64{1, 1}, []float64{1, 1})
	r.Track(steps[0])
	assert.Panics(t, func() { r.Track(steps[2]) })
}

func TestLoadDataMissing(t *testing.T) {
	_, err := LoadData[[]int](filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestEpisodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.json")
	e := NewEpisodes(path)

	for _, step := range episode([]float64{1, -1}, []float64{2, 0.5}) {
		e.Track(step)
	}
	terminal := episode([]float64{-1, -1})
	terminal[1].Discount = 0
	for _, step := range terminal {
		e.Track(step)
	}

	// The second step of an unfinished episode
	e.Track(episode([]float64{4, 4}, []float64{0, 0})[0])
	e.Track(ts.New(ts.Mid, []float64{4, 4}, 1, nil, nil, nil, 1))

	records := e.Records()
	require.Len(t, records, 3)
	assert.Equal(t, [][]float64{{1, -1}, {2, 0.5}}, records[0].Rewards)
	assert.Equal(t, []float64{3, -0.5}, records[0].Returns)
	assert.False(t, records[0].Finished)
	assert.True(t, records[1].Finished)
	assert.Equal(t, 2, records[2].Episode)
	assert.False(t, records[2].Finished)

	require.NoError(t, e.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved []EpisodeRecord
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, records, saved)
	assert.Contains(t, string(data), `"finished": true`)

	assert.Panics(t, func() {
		NewEpisodes(path).Track(ts.New(ts.Mid, nil, 1, nil, nil, nil, 3))
	})
}
