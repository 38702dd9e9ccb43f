// Package gridworld implements 2D multi-agent gridworld environments
package gridworld

import (
	"fmt"

	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/timestep"
)

// Actions available to every agent
const (
	Stay = iota
	Left
	Right
	Up
	Down
	NumActions
)

// maxStartTries bounds the resampling of starting positions in which
// all agents already share a cell
const maxStartTries = 100

type position struct {
	x, y int
}

// Rendezvous is a square gridworld in which a team of agents must meet
// in a single cell. Agents act simultaneously and may share cells.
//
// At every step each agent receives the same reward, the negative mean
// Manhattan distance between all pairs of agents divided by the size of
// the grid. When all agents share a cell, each receives an additional
// reward of 1 and the episode terminates. Episodes are cut off after a
// fixed number of steps otherwise.
//
// The observation of agent i holds its normalized position followed by
// the normalized offsets to every other agent. Its unary features are
// the normalized positions of all agents, its own first, and its binary
// features are the normalized offset and distance to every other agent.
type Rendezvous struct {
	environment.Starter
	environment.Ender
	agents   int
	size     int
	discount float64

	positions   []position
	currentStep timestep.TimeStep
}

// New creates a new Rendezvous with the given number of agents on a
// size x size grid. Episodes are cut off after maxSteps steps. The
// returned TimeStep is the first step of the first episode.
func New(agents, size, maxSteps int, discount float64,
	seed uint64) (*Rendezvous, timestep.TimeStep, error) {
	if agents < 2 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: need at least two "+
			"agents, got %v", agents)
	}
	if size < 2 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: grid size must be "+
			"at least 2, got %v", size)
	}
	if maxSteps < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: step limit must be "+
			"positive")
	}

	bounds := make([]int, 2*agents)
	for i := range bounds {
		bounds[i] = size
	}

	r := &Rendezvous{
		Starter:  environment.NewCategoricalStarter(bounds, seed),
		Ender:    environment.NewStepLimit(maxSteps),
		agents:   agents,
		size:     size,
		discount: discount,
	}
	step, err := r.Reset()
	return r, step, err
}

// Spec implements the environment.Environment interface
func (r *Rendezvous) Spec() environment.Spec {
	obsDims := make([]int, r.agents)
	numActions := make([]int, r.agents)
	for i := range obsDims {
		obsDims[i] = 2 * r.agents
		numActions[i] = NumActions
	}
	return environment.Spec{
		NAgents:    r.agents,
		ObsDims:    obsDims,
		NumActions: numActions,
		UnaryDim:   2 * r.agents,
		BinaryDim:  3 * (r.agents - 1),
		Discount:   r.discount,
	}
}

// Positions returns the (x, y) coordinates of every agent
func (r *Rendezvous) Positions() [][2]int {
	out := make([][2]int, len(r.positions))
	for i, p := range r.positions {
		out[i] = [2]int{p.x, p.y}
	}
	return out
}

// Reset implements the environment.Environment interface
func (r *Rendezvous) Reset() (timestep.TimeStep, error) {
	for try := 0; ; try++ {
		if try == maxStartTries {
			return timestep.TimeStep{}, fmt.Errorf("reset: could not sample "+
				"distinct starting positions")
		}
		start := r.Start()
		r.positions = make([]position, r.agents)
		for i := range r.positions {
			r.positions[i] = position{int(start[2*i]), int(start[2*i+1])}
		}
		if !r.together() {
			break
		}
	}

	rewards := make([]float64, r.agents)
	obs, unary, binary := r.features()
	r.currentStep = timestep.New(timestep.First, rewards, r.discount, obs,
		unary, binary, 0)
	return r.currentStep, nil
}

// Step implements the environment.Environment interface
func (r *Rendezvous) Step(actions []int) (timestep.TimeStep, error) {
	if r.currentStep.Last() {
		return timestep.TimeStep{}, fmt.Errorf("step: episode has ended, " +
			"reset the environment")
	}
	if len(actions) != r.agents {
		return timestep.TimeStep{}, fmt.Errorf("step: %v actions for %v "+
			"agents", len(actions), r.agents)
	}
	for i, a := range actions {
		if a < 0 || a >= NumActions {
			return timestep.TimeStep{}, fmt.Errorf("step: agent %v: illegal "+
				"action %v", i, a)
		}
	}

	for i, a := range actions {
		r.positions[i] = r.move(r.positions[i], a)
	}

	reward, terminal := r.reward()
	rewards := make([]float64, r.agents)
	for i := range rewards {
		rewards[i] = reward
	}

	stepType, discount := timestep.Mid, r.discount
	if terminal {
		stepType, discount = timestep.Last, 0
	}

	obs, unary, binary := r.features()
	step := timestep.New(stepType, rewards, discount, obs, unary, binary,
		r.currentStep.Number+1)
	if !terminal {
		r.End(&step)
	}
	r.currentStep = step

	return step, nil
}

// move returns p after taking action a, staying inside the grid
func (r *Rendezvous) move(p position, a int) position {
	switch a {
	case Left:
		if p.x > 0 {
			p.x--
		}
	case Right:
		if p.x < r.size-1 {
			p.x++
		}
	case Up:
		if p.y < r.size-1 {
			p.y++
		}
	case Down:
		if p.y > 0 {
			p.y--
		}
	}
	return p
}
