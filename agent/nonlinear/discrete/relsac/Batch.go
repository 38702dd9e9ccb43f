package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/network"
	"gorgonia.org/tensor"
)

// Batch is a sample of joint transitions. Every slice holds one entry
// per agent, and every tensor and inner slice has the batch as its
// leading dimension. Actions are one-hot encoded and Dones hold 1 for
// terminal transitions and 0 otherwise.
type Batch struct {
	Obs     []*tensor.Dense
	Unary   []*tensor.Dense
	Binary  []*tensor.Dense
	Actions []*tensor.Dense
	Rewards [][]float64

	NextObs    []*tensor.Dense
	NextUnary  []*tensor.Dense
	NextBinary []*tensor.Dense
	Dones      [][]float64
}

// Current returns the critic input of the current step with the
// batch's actions
func (b Batch) Current() agent.CriticInput {
	return agent.CriticInput{
		Obs:     b.Obs,
		Unary:   b.Unary,
		Binary:  b.Binary,
		Actions: b.Actions,
	}
}

// Next returns the critic input of the next step with the given
// actions
func (b Batch) Next(actions []*tensor.Dense) agent.CriticInput {
	return agent.CriticInput{
		Obs:     b.NextObs,
		Unary:   b.NextUnary,
		Binary:  b.NextBinary,
		Actions: actions,
	}
}

// Validate returns a ShapeMismatch error if b does not hold exactly
// one correctly shaped entry per agent of c.
func (b Batch) Validate(c Config) error {
	tensors := []struct {
		name string
		ts   []*tensor.Dense
		cols func(i int) int
	}{
		{"obs", b.Obs, func(i int) int { return c.ObsDims[i] }},
		{"next obs", b.NextObs, func(i int) int { return c.ObsDims[i] }},
		{"actions", b.Actions, func(i int) int { return c.NumActions[i] }},
		{"unary", b.Unary, nil},
		{"next unary", b.NextUnary, nil},
		{"binary", b.Binary, nil},
		{"next binary", b.NextBinary, nil},
	}
	for _, f := range tensors {
		if len(f.ts) != c.NAgents {
			return network.Errorf("validate", network.ShapeMismatch,
				"%v for %v agents, want %v", f.name, len(f.ts), c.NAgents)
		}
		for i, t := range f.ts {
			if t == nil {
				return network.Errorf("validate", network.ShapeMismatch,
					"agent %v: nil %v", i, f.name)
			}
			shape := t.Shape()
			ok := len(shape) >= 1 && shape[0] == c.BatchSize
			if f.cols != nil {
				ok = ok && len(shape) == 2 && shape[1] == f.cols(i)
			}
			if !ok {
				want := "batch leading dimension"
				if f.cols != nil {
					want = fmt.Sprint(tensor.Shape{c.BatchSize, f.cols(i)})
				}
				return network.Errorf("validate", network.ShapeMismatch,
					"agent %v: %v has shape %v, want %v", i, f.name, shape,
					want)
			}
		}
	}

	scalars := []struct {
		name string
		vs   [][]float64
	}{
		{"rewards", b.Rewards},
		{"dones", b.Dones},
	}
	for _, f := range scalars {
		if len(f.vs) != c.NAgents {
			return network.Errorf("validate", network.ShapeMismatch,
				"%v for %v agents, want %v", f.name, len(f.vs), c.NAgents)
		}
		for i, v := range f.vs {
			if len(v) != c.BatchSize {
				return network.Errorf("validate", network.ShapeMismatch,
					"agent %v: %v of length %v, want %v", i, f.name, len(v),
					c.BatchSize)
			}
		}
	}
	return nil
}
