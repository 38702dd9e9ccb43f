// Package timestep implements timesteps of the interaction between a
// team of agents and their environment
package timestep

import (
	"fmt"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in a multi-agent
// environment. Every slice holds one entry per agent.
//
// A Last step with a Discount of 0 is terminal. A Last step with a
// non-zero Discount was cut off by a step limit and its successor
// values should still be bootstrapped.
type TimeStep struct {
	StepType
	Rewards      []float64
	Discount     float64
	Observations [][]float64
	Unary        [][]float64 // Per-entity relational features
	Binary       [][]float64 // Pairwise relational features
	Number       int
}

// New returns a new TimeStep
func New(t StepType, rewards []float64, discount float64, obs, unary,
	binary [][]float64, n int) TimeStep {
	return TimeStep{
		StepType:     t,
		Rewards:      rewards,
		Discount:     discount,
		Observations: obs,
		Unary:        unary,
		Binary:       binary,
		Number:       n,
	}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// Terminal returns whether the episode ended in an absorbing state
func (t *TimeStep) Terminal() bool {
	return t.Last() && t.Discount == 0
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Rewards:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Rewards, t.Discount, t.Number)
}

// Transition is a joint transition of all agents, as stored in a
// replay buffer
type Transition struct {
	Obs, Unary, Binary             [][]float64
	Actions                        []int
	Rewards                        []float64
	NextObs, NextUnary, NextBinary [][]float64
	Dones                          []float64
}

// NewTransition returns the transition from step to next under the
// given actions. Every agent is done when next is terminal.
func NewTransition(step TimeStep, actions []int,
	next TimeStep) Transition {
	dones := make([]float64, len(actions))
	if next.Terminal() {
		for i := range dones {
			dones[i] = 1
		}
	}
	return Transition{
		Obs:        step.Observations,
		Unary:      step.Unary,
		Binary:     step.Binary,
		Actions:    actions,
		Rewards:    next.Rewards,
		NextObs:    next.Observations,
		NextUnary:  next.Unary,
		NextBinary: next.Binary,
		Dones:      dones,
	}
}
