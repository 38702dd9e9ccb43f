// Package agent defines the capabilities that the networks of a
// multi-agent actor-critic must provide to the training engine.
//
// Policies and critics are opaque to the engine: it never inspects
// their architecture, it only evaluates them, asks them to accumulate
// gradients for an upstream gradient, and moves or synchronizes their
// parameters through the network package.
package agent

import (
	"github.com/samuelfneumann/relsac/network"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// PolicySample is the result of evaluating a policy on a batch of
// observations. Every slice and matrix row is indexed by sample.
type PolicySample struct {
	Actions []int         // Sampled action indices
	OneHot  *tensor.Dense // One-hot encoding of Actions, (batch, actions)
	Probs   *mat.Dense    // Action probabilities, (batch, actions)
	LogPi   []float64     // Log-probability of each sampled action

	// Regularizers are scalar penalty terms of the policy's outputs
	// which are added to the policy loss.
	Regularizers []float64

	// Entropy is the mean entropy of the action distributions
	Entropy float64
}

// Policy is a stochastic policy over a discrete action set.
type Policy interface {
	network.Network

	// Forward samples an action for every row of obs, which has shape
	// (batch, features).
	Forward(obs *tensor.Dense) (*PolicySample, error)

	// Backward accumulates into the policy's parameters the gradient
	// of
	//
	//	Σ_b dLogPi[b] * log π(actions[b] | obs[b]) + regWeight * Σ reg
	//
	// where reg are the policy's regularizers on obs.
	Backward(obs *tensor.Dense, actions []int, dLogPi []float64,
		regWeight float64) error

	// Act selects an action for a single observation. When explore is
	// false the most probable action is taken.
	Act(obs []float64, explore bool) (int, error)

	// NumActions returns the size of the action set
	NumActions() int
}

// CriticInput is the joint input of a centralized critic. Each slice
// holds one tensor per agent with the batch as leading dimension.
type CriticInput struct {
	Obs     []*tensor.Dense
	Unary   []*tensor.Dense // Per-entity relational features
	Binary  []*tensor.Dense // Pairwise relational features
	Actions []*tensor.Dense // One-hot actions, (batch, actions)
}

// CriticOutput is the critic's estimate for one agent
type CriticOutput struct {
	Q    []float64  // Value of the given joint action, per sample
	AllQ *mat.Dense // Value of every action of the agent, (batch, actions)
}

// Critic is a centralized action-value function shared by all agents.
type Critic interface {
	network.Network

	// Forward evaluates the critic for every agent. AllQ is only
	// populated when allQ is true.
	Forward(in CriticInput, allQ bool) ([]CriticOutput, error)

	// Backward accumulates into the critic's parameters the gradient
	// of Σ_i Σ_b dQ[i][b] * Q_i(in)[b].
	Backward(in CriticInput, dQ [][]float64) error

	// ScaleSharedGradients multiplies the accumulated gradients of
	// every parameter shared between agents by factor.
	ScaleSharedGradients(factor float64)
}
