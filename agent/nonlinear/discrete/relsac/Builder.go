package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/agent"
	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/critic"
	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/policy"
)

// Builder constructs the networks of a RelationalSAC. Live and target
// networks of the same role are built by the same call and must have
// identical architectures.
type Builder interface {
	// Policy returns the policy of agent i. Only live policies are
	// built with rollout set, which enables Act.
	Policy(c Config, i int, rollout bool, seed uint64) (agent.Policy, error)

	// Critic returns a centralized critic over all agents of c
	Critic(c Config) (agent.Critic, error)
}

// validator is implemented by Builders which restrict the
// configurations they can build
type validator interface {
	Validate(c Config) error
}

// GorgoniaBuilder builds Categorical policies and a Relational critic
type GorgoniaBuilder struct{}

// Validate returns an error if the networks of c cannot be built. The
// training graphs need a batch of at least two samples.
func (GorgoniaBuilder) Validate(c Config) error {
	switch {
	case c.BatchSize < 2:
		return fmt.Errorf("validate: batch size must be at least 2, got %v",
			c.BatchSize)
	case c.InitWFn == nil:
		return fmt.Errorf("validate: no weight initializer configured")
	}
	return nil
}

// Policy implements the Builder interface
func (GorgoniaBuilder) Policy(c Config, i int, rollout bool,
	seed uint64) (agent.Policy, error) {
	if c.InitWFn == nil {
		return nil, fmt.Errorf("policy: no weight initializer configured")
	}
	return policy.NewCategorical(fmt.Sprintf("pi%v", i), c.ObsDims[i],
		c.NumActions[i], c.BatchSize, c.PolicyHidden, c.InitWFn.InitWFn(),
		rollout, seed)
}

// Critic implements the Builder interface
func (GorgoniaBuilder) Critic(c Config) (agent.Critic, error) {
	if c.InitWFn == nil {
		return nil, fmt.Errorf("critic: no weight initializer configured")
	}
	return critic.NewRelational(critic.Config{
		ObsDims:    c.ObsDims,
		NumActions: c.NumActions,
		UnaryDim:   c.UnaryDim,
		BinaryDim:  c.BinaryDim,
		Hidden:     c.CriticHidden,
		Batch:      c.BatchSize,
		Init:       c.InitWFn.InitWFn(),
	})
}
