package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/initwfn"
	"github.com/samuelfneumann/relsac/solver"
)

// Config holds the construction parameters of a RelationalSAC. A
// Config is stored in every checkpoint and is enough to rebuild an
// identically shaped instance.
type Config struct {
	NAgents    int
	ObsDims    []int // Observation features of each agent
	NumActions []int // Action set size of each agent
	UnaryDim   int   // Flattened per-sample unary feature size
	BinaryDim  int   // Flattened per-sample binary feature size
	BatchSize  int

	Gamma       float64 // Discount factor
	Tau         float64 // Polyak averaging constant of target networks
	RewardScale float64 // Inverse entropy temperature

	PolicyHidden []int // Hidden layer sizes of each policy
	CriticHidden int   // Hidden size of every critic layer

	PolicySolver *solver.Solver
	CriticSolver *solver.Solver
	InitWFn      *initwfn.InitWFn

	Seed uint64
}

// DefaultConfig returns a Config with the standard hyperparameters of
// the algorithm for the given agents. The policies are optimized with
// Adam at step size 0.01 and the critic with Adam at step size 0.01
// and weight decay 1e-3.
func DefaultConfig(obsDims, numActions []int, unaryDim, binaryDim,
	batchSize int) (Config, error) {
	policySolver, err := solver.NewDefaultAdam(0.01)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %w", err)
	}
	criticSolver, err := solver.NewAdam(0.01, 1e-8, 0.9, 0.999, 1e-3)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %w", err)
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %w", err)
	}

	return Config{
		NAgents:      len(obsDims),
		ObsDims:      obsDims,
		NumActions:   numActions,
		UnaryDim:     unaryDim,
		BinaryDim:    binaryDim,
		BatchSize:    batchSize,
		Gamma:        0.95,
		Tau:          0.01,
		RewardScale:  10,
		PolicyHidden: []int{64, 64},
		CriticHidden: 64,
		PolicySolver: policySolver,
		CriticSolver: criticSolver,
		InitWFn:      init,
	}, nil
}

// Validate returns an error describing the first illegal field of c
func (c Config) Validate() error {
	switch {
	case c.NAgents < 1:
		return fmt.Errorf("validate: need at least one agent")
	case len(c.ObsDims) != c.NAgents:
		return fmt.Errorf("validate: %v observation sizes for %v agents",
			len(c.ObsDims), c.NAgents)
	case len(c.NumActions) != c.NAgents:
		return fmt.Errorf("validate: %v action set sizes for %v agents",
			len(c.NumActions), c.NAgents)
	case c.BatchSize < 1:
		return fmt.Errorf("validate: batch size must be positive")
	case c.Gamma < 0 || c.Gamma > 1:
		return fmt.Errorf("validate: gamma must be in [0, 1], got %v", c.Gamma)
	case c.Tau < 0 || c.Tau > 1:
		return fmt.Errorf("validate: tau must be in [0, 1], got %v", c.Tau)
	case c.RewardScale <= 0:
		return fmt.Errorf("validate: reward scale must be positive")
	case c.PolicySolver == nil || c.CriticSolver == nil:
		return fmt.Errorf("validate: missing solver configuration")
	}

	for i := 0; i < c.NAgents; i++ {
		if c.ObsDims[i] < 1 || c.NumActions[i] < 1 {
			return fmt.Errorf("validate: agent %v has %v observation features "+
				"and %v actions", i, c.ObsDims[i], c.NumActions[i])
		}
	}
	return nil
}
