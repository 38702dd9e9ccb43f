package relsac

import (
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func gorgoniaConfig(t *testing.T) Config {
	t.Helper()
	c, err := DefaultConfig([]int{3, 4}, []int{3, 2}, 4, 2, 4)
	require.NoError(t, err)
	c.PolicyHidden = []int{8}
	c.CriticHidden = 8
	c.Seed = 11
	return c
}

func randomBatch(c Config, seed uint64) Batch {
	rng := rand.New(rand.NewSource(seed))
	dense := func(rows, cols int) *tensor.Dense {
		backing := make([]float64, rows*cols)
		for i := range backing {
			backing[i] = rng.NormFloat64()
		}
		return tensor.New(tensor.WithShape(rows, cols),
			tensor.WithBacking(backing))
	}

	var b Batch
	for i := 0; i < c.NAgents; i++ {
		k := c.NumActions[i]
		acts := make([]float64, c.BatchSize*k)
		rewards := make([]float64, c.BatchSize)
		dones := make([]float64, c.BatchSize)
		for s := 0; s < c.BatchSize; s++ {
			acts[s*k+rng.Intn(k)] = 1
			rewards[s] = rng.Float64()
			if rng.Float64() < 0.25 {
				dones[s] = 1
			}
		}
		b.Obs = append(b.Obs, dense(c.BatchSize, c.ObsDims[i]))
		b.NextObs = append(b.NextObs, dense(c.BatchSize, c.ObsDims[i]))
		b.Unary = append(b.Unary, dense(c.BatchSize, c.UnaryDim))
		b.NextUnary = append(b.NextUnary, dense(c.BatchSize, c.UnaryDim))
		b.Binary = append(b.Binary, dense(c.BatchSize, c.BinaryDim))
		b.NextBinary = append(b.NextBinary, dense(c.BatchSize, c.BinaryDim))
		b.Actions = append(b.Actions, tensor.New(
			tensor.WithShape(c.BatchSize, k), tensor.WithBacking(acts)))
		b.Rewards = append(b.Rewards, rewards)
		b.Dones = append(b.Dones, dones)
	}
	return b
}

func TestGorgoniaTrainingAndCheckpoint(t *testing.T) {
	c := gorgoniaConfig(t)
	r, err := New(c)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	critic, _ := r.Critic()
	batch := randomBatch(c, 3)

	// Policy updates never modify the critic
	before := snapshot(critic)
	_, err = r.UpdatePolicies(batch, true)
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(critic))

	for i := 0; i < 3; i++ {
		stats, err := r.Step(randomBatch(c, uint64(10+i)), true)
		require.NoError(t, err)
		assert.Equal(t, i+1, stats.Critic.Iteration)
		assert.Len(t, stats.Policy.Agents, 2)
	}
	assert.NotEqual(t, before, snapshot(critic))

	path := filepath.Join(t.TempDir(), "sac.gob")
	require.NoError(t, r.Save(path, 123))

	loaded, episode, err := Load(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { loaded.Close() })
	assert.Equal(t, 123, episode)

	obs := [][]float64{{0.1, -0.2, 0.3}, {1, 0, -1, 0.5}}
	want, err := r.Act(obs, false)
	require.NoError(t, err)
	got, err := loaded.Act(obs, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	loadedCritic, _ := loaded.Critic()
	wantQ, err := critic.Forward(batch.Current(), true)
	require.NoError(t, err)
	gotQ, err := loadedCritic.Forward(batch.Current(), true)
	require.NoError(t, err)
	for i := range wantQ {
		assert.Equal(t, wantQ[i].Q, gotQ[i].Q)
	}

	inference, _, err := Load(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { inference.Close() })
	got, err = inference.Act(obs, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = inference.PrepRollouts(network.Host)
	require.NoError(t, err)
}

func TestGorgoniaCriticGradientsDoNotCarryOver(t *testing.T) {
	c := gorgoniaConfig(t)
	c.Gamma = 0
	var err error
	c.CriticSolver, err = solver.NewDefaultAdam(1e-12)
	require.NoError(t, err)
	r, err := New(c)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	// With no bootstrapping and a negligible step, every update on the
	// same batch sees the same gradient
	batch := randomBatch(c, 5)
	first, err := r.UpdateCritic(batch, false)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		stats, err := r.UpdateCritic(batch, false)
		require.NoError(t, err)
		assert.InEpsilon(t, first.GradNorm, stats.GradNorm, 1e-6)
		assert.InEpsilon(t, first.Loss, stats.Loss, 1e-6)
	}

	// Policy updates between critic updates change nothing either
	_, err = r.UpdatePolicies(batch, true)
	require.NoError(t, err)
	stats, err := r.UpdateCritic(batch, false)
	require.NoError(t, err)
	assert.InEpsilon(t, first.GradNorm, stats.GradNorm, 1e-6)
}
