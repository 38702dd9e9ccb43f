package solver

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/relsac/network"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize    float64
	Epsilon     float64 // Smoothing factor
	Beta1       float64
	Beta2       float64
	WeightDecay float64 // L2 penalty added to the gradient
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, 0)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2, weightDecay float64) (*Solver,
	error) {
	adam := AdamConfig{
		StepSize:    stepSize,
		Epsilon:     epsilon,
		Beta1:       beta1,
		Beta2:       beta2,
		WeightDecay: weightDecay,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam Optimizer over params as described by the
// AdamConfig
func (a AdamConfig) Create(params []*network.Param) (Optimizer, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data()))
		v[i] = make([]float64, len(p.Data()))
	}
	return &adam{config: a, params: params, m: m, v: v}, nil
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// Validate implements the Config interface
func (a AdamConfig) Validate() error {
	switch {
	case a.StepSize <= 0:
		return fmt.Errorf("adam: step size must be positive")
	case a.Beta1 < 0 || a.Beta1 >= 1:
		return fmt.Errorf("adam: beta1 must be in [0, 1)")
	case a.Beta2 < 0 || a.Beta2 >= 1:
		return fmt.Errorf("adam: beta2 must be in [0, 1)")
	case a.Epsilon <= 0:
		return fmt.Errorf("adam: epsilon must be positive")
	case a.WeightDecay < 0:
		return fmt.Errorf("adam: weight decay must be non-negative")
	}
	return nil
}

// adam implements the Adam optimizer with bias corrected moment
// estimates. Its moments are kept outside of the parameters so that
// they can be checkpointed.
type adam struct {
	config AdamConfig
	params []*network.Param
	steps  int
	m, v   [][]float64
}

// Step implements the Optimizer interface
func (a *adam) Step() error {
	a.steps++
	c := a.config
	correction1 := 1 - math.Pow(c.Beta1, float64(a.steps))
	correction2 := 1 - math.Pow(c.Beta2, float64(a.steps))
	stepSize := c.StepSize / correction1

	for i, p := range a.params {
		w, g := p.Data(), p.GradData()
		m, v := a.m[i], a.v[i]
		for j := range w {
			grad := g[j]
			if c.WeightDecay != 0 {
				grad += c.WeightDecay * w[j]
			}
			m[j] = c.Beta1*m[j] + (1-c.Beta1)*grad
			v[j] = c.Beta2*v[j] + (1-c.Beta2)*grad*grad
			denom := math.Sqrt(v[j])/math.Sqrt(correction2) + c.Epsilon
			w[j] -= stepSize * m[j] / denom
		}
	}
	return nil
}

// ZeroGrad implements the Optimizer interface
func (a *adam) ZeroGrad() {
	network.ZeroGrad(a.params)
}

// State implements the Optimizer interface
func (a *adam) State() State {
	return State{
		Type:   Adam,
		Steps:  a.steps,
		First:  copyMoments(a.m),
		Second: copyMoments(a.v),
	}
}

// LoadState implements the Optimizer interface
func (a *adam) LoadState(s State) error {
	if s.Type != Adam {
		return fmt.Errorf("loadState: cannot load %v state into Adam", s.Type)
	}
	if err := checkMoments(s.First, a.m); err != nil {
		return fmt.Errorf("loadState: first moments: %w", err)
	}
	if err := checkMoments(s.Second, a.v); err != nil {
		return fmt.Errorf("loadState: second moments: %w", err)
	}
	a.steps = s.Steps
	a.m = copyMoments(s.First)
	a.v = copyMoments(s.Second)
	return nil
}

func copyMoments(moments [][]float64) [][]float64 {
	out := make([][]float64, len(moments))
	for i := range moments {
		out[i] = append([]float64(nil), moments[i]...)
	}
	return out
}

func checkMoments(got, want [][]float64) error {
	if len(got) != len(want) {
		return network.Errorf("checkMoments", network.ArchitectureMismatch,
			"%v moment vectors, want %v", len(got), len(want))
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			return network.Errorf("checkMoments",
				network.ArchitectureMismatch,
				"moment %v has length %v, want %v", i, len(got[i]),
				len(want[i]))
		}
	}
	return nil
}
