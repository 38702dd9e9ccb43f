package gridworld

import (
	"testing"

	"github.com/samuelfneumann/relsac/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendezvousSpec(t *testing.T) {
	env, step, err := New(3, 5, 10, 0.9, 1)
	require.NoError(t, err)
	spec := env.Spec()
	require.NoError(t, spec.Validate())

	assert.True(t, step.First())
	assert.Equal(t, 3, spec.NAgents)
	for i := 0; i < 3; i++ {
		assert.Len(t, step.Observations[i], spec.ObsDims[i])
		assert.Len(t, step.Unary[i], spec.UnaryDim)
		assert.Len(t, step.Binary[i], spec.BinaryDim)
		assert.Equal(t, NumActions, spec.NumActions[i])
	}
	assert.False(t, env.together())
}

func place(env *Rendezvous, positions ...position) {
	env.positions = positions
}

func TestRendezvousMoveAndReward(t *testing.T) {
	env, _, err := New(2, 4, 10, 0.9, 2)
	require.NoError(t, err)

	place(env, position{0, 0}, position{3, 3})
	step, err := env.Step([]int{Left, Right})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 0}, {3, 3}}, env.Positions())
	assert.Equal(t, []float64{-6.0 / 4, -6.0 / 4}, step.Rewards)
	assert.True(t, step.Mid())

	step, err = env.Step([]int{Up, Down})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 1}, {3, 2}}, env.Positions())
	assert.InDelta(t, -4.0/4, step.Rewards[0], 1e-12)

	// Observation of agent 0: own position then offset to agent 1
	assert.InDeltaSlice(t, []float64{0, 1.0 / 3, 1, 1.0 / 3},
		step.Observations[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1.0 / 3, 4.0 / 6},
		step.Binary[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 2.0 / 3, 0, 1.0 / 3},
		step.Unary[1], 1e-12)
}

func TestRendezvousTerminates(t *testing.T) {
	env, _, err := New(2, 3, 10, 0.9, 3)
	require.NoError(t, err)

	place(env, position{1, 1}, position{2, 1})
	step, err := env.Step([]int{Stay, Left})
	require.NoError(t, err)
	assert.True(t, step.Terminal())
	assert.Equal(t, []float64{1, 1}, step.Rewards)

	_, err = env.Step([]int{Stay, Stay})
	assert.Error(t, err)

	step, err = env.Reset()
	require.NoError(t, err)
	assert.True(t, step.First())
}

func TestRendezvousStepLimit(t *testing.T) {
	env, _, err := New(2, 8, 2, 0.9, 4)
	require.NoError(t, err)
	place(env, position{0, 0}, position{7, 7})

	step, err := env.Step([]int{Stay, Stay})
	require.NoError(t, err)
	assert.True(t, step.Mid())

	step, err = env.Step([]int{Stay, Stay})
	require.NoError(t, err)
	assert.True(t, step.Last())
	assert.False(t, step.Terminal())
	assert.Equal(t, 2, step.Number)

	tr := timestep.NewTransition(step, []int{0, 0}, step)
	assert.Equal(t, []float64{0, 0}, tr.Dones)
}

func TestRendezvousInvalidActions(t *testing.T) {
	env, _, err := New(2, 3, 10, 0.9, 5)
	require.NoError(t, err)

	_, err = env.Step([]int{0})
	assert.Error(t, err)
	_, err = env.Step([]int{0, NumActions})
	assert.Error(t, err)

	_, _, err = New(1, 3, 10, 0.9, 5)
	assert.Error(t, err)
}
