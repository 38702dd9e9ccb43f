package policy

import (
	"math"
	"testing"

	"github.com/samuelfneumann/relsac/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	features = 3
	actions  = 4
	batch    = 5
)

func randomObs(rng *rand.Rand, rows int) *tensor.Dense {
	backing := make([]float64, rows*features)
	for i := range backing {
		backing[i] = rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(rows, features),
		tensor.WithBacking(backing))
}

func newTestPolicy(t *testing.T) *Categorical {
	t.Helper()
	c, err := NewCategorical("pi", features, actions, batch, []int{8},
		G.GlorotU(1.0), true, 7)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestForward(t *testing.T) {
	c := newTestPolicy(t)
	obs := randomObs(rand.New(rand.NewSource(1)), batch)

	sample, err := c.Forward(obs)
	require.NoError(t, err)
	require.Len(t, sample.Actions, batch)
	require.Len(t, sample.Regularizers, 1)
	assert.Equal(t, tensor.Shape{batch, actions}, sample.OneHot.Shape())

	oneHot := sample.OneHot.Float64s()
	for b, a := range sample.Actions {
		row := mat.Row(nil, b, sample.Probs)
		assert.InDelta(t, 1, floats.Sum(row), 1e-9)
		assert.InDelta(t, math.Log(row[a]), sample.LogPi[b], 1e-9)
		assert.Equal(t, 1.0, floats.Sum(oneHot[b*actions:(b+1)*actions]))
		assert.Equal(t, 1.0, oneHot[b*actions+a])
	}
	assert.True(t, sample.Entropy > 0)
	assert.True(t, sample.Entropy <= math.Log(actions)+1e-9)
}

// surrogate evaluates Σ_b u[b] log π(a_b|s_b) + w * reg with the
// policy's current parameters.
func surrogate(t *testing.T, c *Categorical, obs *tensor.Dense, acts []int,
	u []float64, w float64) float64 {
	sample, err := c.Forward(obs)
	require.NoError(t, err)

	var j float64
	for b, a := range acts {
		j += u[b] * math.Log(sample.Probs.At(b, a))
	}
	return j + w*sample.Regularizers[0]
}

// checkGradients compares the accumulated gradients of c against
// central differences of the surrogate.
func checkGradients(t *testing.T, c *Categorical, obs *tensor.Dense,
	acts []int, u []float64, w float64) {
	t.Helper()
	const h = 1e-6
	for _, p := range c.Params() {
		data := p.Data()
		for _, i := range []int{0, len(data) / 2, len(data) - 1} {
			orig := data[i]
			data[i] = orig + h
			plus := surrogate(t, c, obs, acts, u, w)
			data[i] = orig - h
			minus := surrogate(t, c, obs, acts, u, w)
			data[i] = orig

			numeric := (plus - minus) / (2 * h)
			assert.InDelta(t, numeric, p.GradData()[i], 1e-4,
				"parameter %v index %v", p.Name(), i)
		}
	}
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	c := newTestPolicy(t)
	rng := rand.New(rand.NewSource(3))
	obs := randomObs(rng, batch)
	acts := []int{0, 1, 2, 3, 1}
	u := []float64{0.5, -1, 0.25, 2, -0.75}
	const w = 1e-3

	require.NoError(t, c.Backward(obs, acts, u, w))
	checkGradients(t, c, obs, acts, u, w)
}

func TestRepeatedBackwardMatchesFiniteDifferences(t *testing.T) {
	c := newTestPolicy(t)
	rng := rand.New(rand.NewSource(8))
	acts := []int{3, 2, 1, 0, 0}
	u := []float64{-0.5, 1, 0.75, -2, 0.25}
	const w = 1e-3

	for round := 0; round < 3; round++ {
		obs := randomObs(rng, batch)
		_, err := c.Forward(obs)
		require.NoError(t, err)

		network.ZeroGrad(c.Params())
		require.NoError(t, c.Backward(obs, acts, u, w))
		checkGradients(t, c, obs, acts, u, w)
	}
}

func TestBackwardAccumulatesAndRespectsGate(t *testing.T) {
	c := newTestPolicy(t)
	obs := randomObs(rand.New(rand.NewSource(5)), batch)
	acts := []int{0, 0, 1, 1, 2}
	u := []float64{1, 1, 1, 1, 1}

	require.NoError(t, c.Backward(obs, acts, u, 0))
	once := append([]float64(nil), c.Params()[0].GradData()...)
	require.NoError(t, c.Backward(obs, acts, u, 0))
	for i, g := range c.Params()[0].GradData() {
		assert.InDelta(t, 2*once[i], g, 1e-12)
	}

	network.ZeroGrad(c.Params())
	err := network.Isolate(c, func() error {
		return c.Backward(obs, acts, u, 0)
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, network.GradNorm(c.Params()))

	// Nothing computed while gated leaks into the next pass
	require.NoError(t, c.Backward(obs, acts, u, 0))
	for i, g := range c.Params()[0].GradData() {
		assert.InDelta(t, once[i], g, 1e-12)
	}
}

func TestActGreedy(t *testing.T) {
	c := newTestPolicy(t)
	single := []float64{0.3, -1.2, 0.8}

	rows := make([]float64, 0, batch*features)
	for b := 0; b < batch; b++ {
		rows = append(rows, single...)
	}
	sample, err := c.Forward(tensor.New(tensor.WithShape(batch, features),
		tensor.WithBacking(rows)))
	require.NoError(t, err)

	want := floats.MaxIdx(mat.Row(nil, 0, sample.Probs))
	for i := 0; i < 3; i++ {
		a, err := c.Act(single, false)
		require.NoError(t, err)
		assert.Equal(t, want, a)
	}

	a, err := c.Act(single, true)
	require.NoError(t, err)
	assert.True(t, a >= 0 && a < actions)

	// Parameter updates are seen by the rollout graph
	for _, p := range c.Params() {
		for i := range p.Data() {
			p.Data()[i] = 0
		}
	}
	last := c.Params()[len(c.Params())-1].Data()
	last[actions-1] = 1
	a, err = c.Act(single, false)
	require.NoError(t, err)
	assert.Equal(t, actions-1, a)
}

func TestShapeMismatch(t *testing.T) {
	c := newTestPolicy(t)

	_, err := c.Forward(randomObs(rand.New(rand.NewSource(1)), batch+1))
	assert.True(t, network.IsShapeMismatch(err))

	_, err = c.Act([]float64{1, 2}, false)
	assert.True(t, network.IsShapeMismatch(err))

	obs := randomObs(rand.New(rand.NewSource(1)), batch)
	err = c.Backward(obs, []int{0}, []float64{1}, 0)
	assert.True(t, network.IsShapeMismatch(err))
}
