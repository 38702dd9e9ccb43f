package environment

import (
	"fmt"
)

// Spec implements an environment specification, which tells the sizes
// of the observations, relational features and discrete action sets
// of every agent of an environment
type Spec struct {
	NAgents    int
	ObsDims    []int
	NumActions []int
	UnaryDim   int // Flattened size of the per-entity features
	BinaryDim  int // Flattened size of the pairwise features
	Discount   float64
}

// Validate returns an error if s is inconsistent
func (s Spec) Validate() error {
	if s.NAgents < 1 {
		return fmt.Errorf("validate: need at least one agent")
	}
	if len(s.ObsDims) != s.NAgents || len(s.NumActions) != s.NAgents {
		return fmt.Errorf("validate: %v observation sizes and %v action set "+
			"sizes for %v agents", len(s.ObsDims), len(s.NumActions), s.NAgents)
	}
	for i := 0; i < s.NAgents; i++ {
		if s.ObsDims[i] < 1 || s.NumActions[i] < 1 {
			return fmt.Errorf("validate: agent %v has %v observation "+
				"features and %v actions", i, s.ObsDims[i], s.NumActions[i])
		}
	}
	if s.UnaryDim < 0 || s.BinaryDim < 0 {
		return fmt.Errorf("validate: negative relational feature size")
	}
	return nil
}
