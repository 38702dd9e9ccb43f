package environment

import (
	"testing"

	"github.com/samuelfneumann/relsac/timestep"
	"github.com/stretchr/testify/assert"
)

func TestStepLimit(t *testing.T) {
	limit := NewStepLimit(3)

	step := timestep.New(timestep.Mid, nil, 0.9, nil, nil, nil, 2)
	assert.False(t, limit.End(&step))
	assert.True(t, step.Mid())

	step.Number = 3
	assert.True(t, limit.End(&step))
	assert.True(t, step.Last())
	assert.False(t, step.Terminal())
}

func TestCategoricalStarter(t *testing.T) {
	bounds := []int{3, 1, 5}
	starter := NewCategoricalStarter(bounds, 42)
	for n := 0; n < 100; n++ {
		start := starter.Start()
		assert.Len(t, start, 3)
		for i, v := range start {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.Less(t, v, float64(bounds[i]))
			assert.Equal(t, float64(int(v)), v)
		}
	}
}

func TestSpecValidate(t *testing.T) {
	s := Spec{NAgents: 2, ObsDims: []int{2, 2}, NumActions: []int{5, 5}}
	assert.NoError(t, s.Validate())

	s.NumActions = []int{5}
	assert.Error(t, s.Validate())
}
