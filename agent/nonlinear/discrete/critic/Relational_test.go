package critic

import (
	"testing"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var testConfig = Config{
	ObsDims:    []int{3, 2, 3},
	NumActions: []int{2, 3, 2},
	UnaryDim:   4,
	BinaryDim:  2,
	Hidden:     6,
	Batch:      4,
}

func newTestCritic(t *testing.T) *Relational {
	t.Helper()
	c := testConfig
	c.Init = G.GlorotU(1.0)
	r, err := NewRelational(c)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func randomDense(rng *rand.Rand, shape ...int) *tensor.Dense {
	backing := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range backing {
		backing[i] = rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func randomInput(seed uint64) agent.CriticInput {
	rng := rand.New(rand.NewSource(seed))
	c := testConfig
	var in agent.CriticInput
	for i := range c.ObsDims {
		in.Obs = append(in.Obs, randomDense(rng, c.Batch, c.ObsDims[i]))

		// Unary features arrive per entity and are flattened
		in.Unary = append(in.Unary, randomDense(rng, c.Batch, 2, 2))
		in.Binary = append(in.Binary, randomDense(rng, c.Batch, c.BinaryDim))

		acts := make([]float64, c.Batch*c.NumActions[i])
		for b := 0; b < c.Batch; b++ {
			acts[b*c.NumActions[i]+rng.Intn(c.NumActions[i])] = 1
		}
		in.Actions = append(in.Actions, tensor.New(
			tensor.WithShape(c.Batch, c.NumActions[i]),
			tensor.WithBacking(acts)))
	}
	return in
}

func TestForward(t *testing.T) {
	r := newTestCritic(t)
	in := randomInput(1)

	out, err := r.Forward(in, true)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, o := range out {
		rows, cols := o.AllQ.Dims()
		assert.Equal(t, testConfig.Batch, rows)
		assert.Equal(t, testConfig.NumActions[i], cols)

		acts := in.Actions[i].Float64s()
		for b := 0; b < rows; b++ {
			onehot := acts[b*cols : (b+1)*cols]
			want := mat.Dot(mat.NewVecDense(cols, onehot),
				o.AllQ.RowView(b))
			assert.InDelta(t, want, o.Q[b], 1e-12)
		}
	}

	out, err = r.Forward(in, false)
	require.NoError(t, err)
	assert.Nil(t, out[0].AllQ)
}

func objective(t *testing.T, r *Relational, in agent.CriticInput,
	dQ [][]float64) float64 {
	out, err := r.Forward(in, false)
	require.NoError(t, err)
	var j float64
	for i := range out {
		for b, q := range out[i].Q {
			j += dQ[i][b] * q
		}
	}
	return j
}

// checkGradients compares the accumulated gradients of r against
// central differences of Σ dQ·Q.
func checkGradients(t *testing.T, r *Relational, in agent.CriticInput,
	dQ [][]float64) {
	t.Helper()
	const h = 1e-6
	for _, p := range r.Params() {
		data := p.Data()
		for _, i := range []int{0, len(data) - 1} {
			orig := data[i]
			data[i] = orig + h
			plus := objective(t, r, in, dQ)
			data[i] = orig - h
			minus := objective(t, r, in, dQ)
			data[i] = orig

			assert.InDelta(t, (plus-minus)/(2*h), p.GradData()[i], 1e-4,
				"parameter %v index %v", p.Name(), i)
		}
	}
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	r := newTestCritic(t)
	in := randomInput(2)
	dQ := [][]float64{
		{0.5, -1, 0.25, 1},
		{1, 1, -0.5, 0},
		{-0.25, 0.75, 2, -1},
	}
	require.NoError(t, r.Backward(in, dQ))
	checkGradients(t, r, in, dQ)
}

func TestRepeatedBackwardMatchesFiniteDifferences(t *testing.T) {
	r := newTestCritic(t)
	dQ := [][]float64{
		{1, -0.5, 0.25, 2},
		{-1, 0.5, 1, 0.25},
		{0.75, -2, 0.5, 1},
	}
	for round := 0; round < 3; round++ {
		in := randomInput(uint64(20 + round))
		_, err := r.Forward(in, true)
		require.NoError(t, err)

		network.ZeroGrad(r.Params())
		require.NoError(t, r.Backward(in, dQ))
		checkGradients(t, r, in, dQ)
	}
}

func TestScaleSharedGradients(t *testing.T) {
	r := newTestCritic(t)
	in := randomInput(3)
	dQ := [][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}, {1, 1, 1, 1}}
	require.NoError(t, r.Backward(in, dQ))

	before := make([][]float64, len(r.Params()))
	for i, p := range r.Params() {
		before[i] = append([]float64(nil), p.GradData()...)
	}

	shared := network.SharedParams(r.Params())
	assert.Len(t, shared, 4)
	r.ScaleSharedGradients(1.0 / 3)

	for i, p := range r.Params() {
		factor := 1.0
		if p.Shared() {
			factor = 1.0 / 3
		}
		for j, g := range p.GradData() {
			assert.InDelta(t, factor*before[i][j], g, 1e-12)
		}
	}
}

func TestFrozenCriticAccumulatesNothing(t *testing.T) {
	r := newTestCritic(t)
	in := randomInput(4)
	dQ := [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}}

	require.NoError(t, r.Backward(in, dQ))
	once := make([][]float64, len(r.Params()))
	for i, p := range r.Params() {
		once[i] = append([]float64(nil), p.GradData()...)
	}
	network.ZeroGrad(r.Params())

	err := network.Isolate(r, func() error { return r.Backward(in, dQ) })
	require.NoError(t, err)
	assert.Equal(t, 0.0, network.GradNorm(r.Params()))

	// A pass after the gate is released sees only its own gradient
	require.NoError(t, r.Backward(in, dQ))
	for i, p := range r.Params() {
		for j, g := range p.GradData() {
			assert.InDelta(t, once[i][j], g, 1e-12)
		}
	}
}

func TestShapeMismatch(t *testing.T) {
	r := newTestCritic(t)
	in := randomInput(5)
	in.Obs[1] = randomDense(rand.New(rand.NewSource(1)), 4, 5)

	_, err := r.Forward(in, false)
	require.Error(t, err)
	assert.True(t, network.IsShapeMismatch(err))
	assert.Contains(t, err.Error(), "agent 1")

	in = randomInput(5)
	in.Actions = in.Actions[:2]
	_, err = r.Forward(in, false)
	assert.True(t, network.IsShapeMismatch(err))

	err = r.Backward(randomInput(5), [][]float64{{1}})
	assert.True(t, network.IsShapeMismatch(err))
}
