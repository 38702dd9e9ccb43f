package timestep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransition(t *testing.T) {
	obs := [][]float64{{0, 1}, {1, 0}}
	next := [][]float64{{1, 1}, {0, 0}}
	first := New(First, []float64{0, 0}, 0.9, obs, obs, obs, 0)

	mid := New(Mid, []float64{-1, -1}, 0.9, next, next, next, 1)
	tr := NewTransition(first, []int{2, 3}, mid)
	assert.Equal(t, obs, tr.Obs)
	assert.Equal(t, next, tr.NextObs)
	assert.Equal(t, []float64{-1, -1}, tr.Rewards)
	assert.Equal(t, []float64{0, 0}, tr.Dones)

	// Cut off by a step limit
	cut := New(Last, []float64{-1, -1}, 0.9, next, next, next, 1)
	assert.False(t, cut.Terminal())
	assert.Equal(t, []float64{0, 0}, NewTransition(first, []int{0, 0}, cut).Dones)

	terminal := New(Last, []float64{1, 1}, 0, next, next, next, 1)
	assert.True(t, terminal.Terminal())
	assert.Equal(t, []float64{1, 1},
		NewTransition(first, []int{0, 0}, terminal).Dones)
}

func TestStepType(t *testing.T) {
	step := New(First, nil, 1, nil, nil, nil, 0)
	assert.True(t, step.First())
	assert.False(t, step.Mid())
	assert.Equal(t, "First", step.StepType.String())
	assert.Equal(t, "Mid", Mid.String())
}
