package network

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipGradNorm(t *testing.T) {
	m := newParamSet([][]int{{2}, {1}}, func(i, j int) float64 { return 0 })
	params := m.Params()
	require.NoError(t, params[0].Accumulate([]float64{3, 0}))
	require.NoError(t, params[1].Accumulate([]float64{4}))

	norm, err := ClipGradNorm(params, 10)
	require.NoError(t, err)
	assert.InDelta(t, 5, norm, 1e-12)
	assert.Equal(t, []float64{3, 0}, params[0].GradData(), "clipped below max")

	norm, err = ClipGradNorm(params, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5, norm, 1e-12)
	assert.InDelta(t, 1, GradNorm(params), 1e-6)
	assert.InDelta(t, 0.6, params[0].GradData()[0], 1e-6)

	_, err = ClipGradNorm(params, 0)
	assert.Error(t, err)
}

func TestClipGradNormNonFinite(t *testing.T) {
	m := newParamSet([][]int{{1}}, func(i, j int) float64 { return 0 })
	require.NoError(t, m.Params()[0].Accumulate([]float64{math.Inf(1)}))

	_, err := ClipGradNorm(m.Params(), 1)
	assert.Error(t, err)
}

func TestScaleAndZeroGrad(t *testing.T) {
	m := newParamSet([][]int{{2}, {2}}, func(i, j int) float64 { return 0 })
	params := m.Params()
	params[1].MarkShared()
	for _, p := range params {
		require.NoError(t, p.Accumulate([]float64{2, 4}))
	}

	shared := SharedParams(params)
	require.Len(t, shared, 1)
	ScaleGrads(shared, 0.5)
	assert.Equal(t, []float64{2, 4}, params[0].GradData())
	assert.Equal(t, []float64{1, 2}, params[1].GradData())

	ZeroGrad(params)
	assert.Equal(t, 0.0, GradNorm(params))
}

func TestAccumulateShapeMismatch(t *testing.T) {
	m := newParamSet([][]int{{2}}, func(i, j int) float64 { return 0 })
	err := m.Params()[0].Accumulate([]float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, IsShapeMismatch(err))
}
