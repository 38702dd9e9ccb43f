// Package expreplay implements experience replay buffers that store
// the joint transitions of a team of agents
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/relsac/environment"
)

// Config implements a specific configuration of a Buffer
type Config struct {
	SampleMethod      SelectorType `koanf:"sample_method"`
	MinReplayCapacity int          `koanf:"min_capacity"`
	MaxReplayCapacity int          `koanf:"max_capacity"`
}

// Validate returns an error if c cannot be used to create a Buffer
func (c Config) Validate() error {
	if c.MinReplayCapacity < 1 {
		return fmt.Errorf("validate: minimum capacity must be positive")
	}
	if c.MaxReplayCapacity < c.MinReplayCapacity {
		return fmt.Errorf("validate: maximum capacity (%v) below minimum "+
			"capacity (%v)", c.MaxReplayCapacity, c.MinReplayCapacity)
	}
	return nil
}

// Create creates and returns a Buffer for the agents of an environment
// with the given Spec
func (c Config) Create(spec environment.Spec, seed uint64) (*Buffer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	sampler, err := CreateSelector(c.SampleMethod, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity, spec)
}
