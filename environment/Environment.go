// Package environment outlines the interfaces and structs needed to
// implement concrete multi-agent environments
package environment

import (
	"github.com/samuelfneumann/relsac/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() []float64
}

// Ender determines when episodes end. If End returns true, it has
// changed the StepType of t to timestep.Last.
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Environment implements a simulated environment shared by a team of
// agents, which act simultaneously
type Environment interface {
	// Reset starts a new episode
	Reset() (timestep.TimeStep, error)

	// Step takes one action per agent
	Step(actions []int) (timestep.TimeStep, error)

	// Spec describes the observations and actions of every agent
	Spec() Spec
}
