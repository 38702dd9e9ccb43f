package initwfn

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestUnmarshalJSON(t *testing.T) {
	var init InitWFn
	data := []byte(`{"Type": "GlorotU", "Config": {"Gain": 1.4}}`)
	require.NoError(t, json.Unmarshal(data, &init))

	assert.Equal(t, GlorotU, init.Type)
	assert.Equal(t, GlorotUConfig{Gain: 1.4}, init.Config)
	require.NotNil(t, init.InitWFn())

	values := init.InitWFn()(tensor.Float64, 3, 4).([]float64)
	assert.Len(t, values, 12)

	assert.Error(t, json.Unmarshal([]byte(`{"Type": "Orthogonal"}`), &init))
	assert.Error(t, json.Unmarshal(
		[]byte(`{"Type": "HeN", "Config": {"Gain": 0}}`), &init))
}

func TestZeroesWithoutConfig(t *testing.T) {
	var init InitWFn
	require.NoError(t, json.Unmarshal([]byte(`{"Type": "Zeroes"}`), &init))

	values := init.InitWFn()(tensor.Float64, 2, 2).([]float64)
	assert.Equal(t, []float64{0, 0, 0, 0}, values)
}

func TestGob(t *testing.T) {
	init, err := NewUniform(-0.5, 0.5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(init))

	var out InitWFn
	require.NoError(t, gob.NewDecoder(&buf).Decode(&out))
	assert.Equal(t, Uniform, out.Type)
	assert.Equal(t, UniformConfig{Low: -0.5, High: 0.5}, out.Config)
	require.NotNil(t, out.InitWFn())
}
