package solver

import (
	"fmt"

	"github.com/samuelfneumann/relsac/network"
	G "gorgonia.org/gorgonia"
)

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize, clip float64) (*Solver, error) {
	vanilla := VanillaConfig{
		StepSize: stepSize,
		Clip:     clip,
	}

	return newSolver(Vanilla, vanilla)
}

// Create returns an Optimizer stepping params with a Gorgonia Vanilla
// Solver as described by the VanillaConfig
func (v VanillaConfig) Create(params []*network.Param) (Optimizer, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	opts := []G.SolverOpt{G.WithLearnRate(v.StepSize)}
	if v.Clip > 0 {
		opts = append(opts, G.WithClip(v.Clip))
	}
	return &vanilla{
		solver: G.NewVanillaSolver(opts...),
		params: params,
		model:  network.Model(params),
	}, nil
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// Validate implements the Config interface
func (v VanillaConfig) Validate() error {
	if v.StepSize <= 0 {
		return fmt.Errorf("vanilla: step size must be positive")
	}
	return nil
}

// vanilla adapts a Gorgonia VanillaSolver to the Optimizer interface.
// The solver is stateless apart from its step counter.
type vanilla struct {
	solver *G.VanillaSolver
	params []*network.Param
	model  []G.ValueGrad
	steps  int
}

// Step implements the Optimizer interface
func (v *vanilla) Step() error {
	if err := v.solver.Step(v.model); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	v.steps++
	return nil
}

// ZeroGrad implements the Optimizer interface
func (v *vanilla) ZeroGrad() {
	network.ZeroGrad(v.params)
}

// State implements the Optimizer interface
func (v *vanilla) State() State {
	return State{Type: Vanilla, Steps: v.steps}
}

// LoadState implements the Optimizer interface
func (v *vanilla) LoadState(s State) error {
	if s.Type != Vanilla {
		return fmt.Errorf("loadState: cannot load %v state into Vanilla",
			s.Type)
	}
	v.steps = s.Steps
	return nil
}
