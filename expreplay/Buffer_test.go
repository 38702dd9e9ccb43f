package expreplay

import (
	"testing"

	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() environment.Spec {
	return environment.Spec{
		NAgents:    2,
		ObsDims:    []int{2, 3},
		NumActions: []int{3, 2},
		UnaryDim:   1,
		BinaryDim:  2,
		Discount:   0.9,
	}
}

// transition returns a transition whose features all equal v
func transition(v float64, done bool) timestep.Transition {
	fill := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	d := 0.0
	if done {
		d = 1
	}
	return timestep.Transition{
		Obs:        [][]float64{fill(2), fill(3)},
		Unary:      [][]float64{fill(1), fill(1)},
		Binary:     [][]float64{fill(2), fill(2)},
		Actions:    []int{int(v) % 3, int(v) % 2},
		Rewards:    []float64{v, -v},
		NextObs:    [][]float64{fill(2), fill(3)},
		NextUnary:  [][]float64{fill(1), fill(1)},
		NextBinary: [][]float64{fill(2), fill(2)},
		Dones:      []float64{d, d},
	}
}

func TestBufferUnderflow(t *testing.T) {
	b, err := New(NewUniformSelector(1), 3, 5, testSpec())
	require.NoError(t, err)

	_, err = b.Sample(2)
	assert.True(t, IsEmptyBuffer(err))
	assert.False(t, IsInsufficientSamples(err))

	require.NoError(t, b.Add(transition(1, false)))
	_, err = b.Sample(2)
	assert.True(t, IsInsufficientSamples(err))

	var replayErr *ExpReplayError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, "sample", replayErr.Op)
}

func TestBufferSampleBatch(t *testing.T) {
	spec := testSpec()
	b, err := New(NewFifoSelector(), 1, 4, spec)
	require.NoError(t, err)
	require.NoError(t, b.Add(transition(1, false)))
	require.NoError(t, b.Add(transition(2, true)))

	batch, err := b.Sample(2)
	require.NoError(t, err)

	for i := 0; i < spec.NAgents; i++ {
		assert.Equal(t, []int{2, spec.ObsDims[i]}, []int(batch.Obs[i].Shape()))
		assert.Equal(t, []int{2, spec.NumActions[i]},
			[]int(batch.Actions[i].Shape()))
		assert.Equal(t, []int{2, 2}, []int(batch.NextBinary[i].Shape()))
	}
	assert.Equal(t, []float64{1, 1, 2, 2}, batch.Obs[0].Float64s())
	assert.Equal(t, []float64{0, 1, 0, 0, 0, 1}, batch.Actions[0].Float64s())
	assert.Equal(t, []float64{0, 1, 1, 0}, batch.Actions[1].Float64s())
	assert.Equal(t, []float64{-1, -2}, batch.Rewards[1])
	assert.Equal(t, []float64{0, 1}, batch.Dones[0])
}

func TestBufferOverwritesOldest(t *testing.T) {
	b, err := New(NewFifoSelector(), 1, 3, testSpec())
	require.NoError(t, err)
	for v := 1; v <= 5; v++ {
		require.NoError(t, b.Add(transition(float64(v), false)))
	}
	assert.Equal(t, 3, b.Capacity())

	batch, err := b.Sample(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, batch.Rewards[0])

	// Oldest transitions are repeated when asking for more than stored
	batch, err = b.Sample(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5, 3}, batch.Rewards[0])
}

func TestBufferUniformSamplesStored(t *testing.T) {
	b, err := New(NewUniformSelector(7), 1, 10, testSpec())
	require.NoError(t, err)
	for v := 1; v <= 4; v++ {
		require.NoError(t, b.Add(transition(float64(v), false)))
	}

	batch, err := b.Sample(64)
	require.NoError(t, err)
	for row, r := range batch.Rewards[0] {
		assert.Contains(t, []float64{1, 2, 3, 4}, r)
		assert.Equal(t, -r, batch.Rewards[1][row])
		assert.Equal(t, r, batch.NextUnary[0].Float64s()[row])
	}
}

func TestBufferAddValidates(t *testing.T) {
	b, err := New(NewUniformSelector(1), 1, 3, testSpec())
	require.NoError(t, err)

	tr := transition(1, false)
	tr.Obs[1] = []float64{1}
	assert.Error(t, b.Add(tr))

	tr = transition(1, false)
	tr.Actions[1] = 2
	assert.Error(t, b.Add(tr))

	tr = transition(1, false)
	tr.Rewards = tr.Rewards[:1]
	assert.Error(t, b.Add(tr))

	assert.Equal(t, 0, b.Capacity())
}

func TestConfigCreate(t *testing.T) {
	c := Config{SampleMethod: Uniform, MinReplayCapacity: 2,
		MaxReplayCapacity: 8}
	b, err := c.Create(testSpec(), 3)
	require.NoError(t, err)
	assert.Equal(t, 8, b.MaxCapacity())
	assert.Equal(t, 2, b.MinCapacity())

	c.SampleMethod = "priority"
	_, err = c.Create(testSpec(), 3)
	assert.Error(t, err)

	c = Config{MinReplayCapacity: 4, MaxReplayCapacity: 2}
	assert.Error(t, c.Validate())
}
