// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/experiment/tracker"
	"github.com/samuelfneumann/relsac/network"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments send each environment TimeStep to their Trackers, which
// cache the data they need in RAM to be later saved to disk by Save().
// The Run() method runs episodes until the episode limit is reached or
// the context is cancelled. The RunEpisode() function will run a single
// episode.
type Experiment interface {
	Run(ctx context.Context) error
	RunEpisode() (bool, error) // Returns whether the experiment finished

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)

	// Save all tracked data to disk
	Save() error
}

// Learner is a multi-agent learner trained by an experiment
type Learner interface {
	Act(obs [][]float64, explore bool) ([]int, error)
	Step(b relsac.Batch, soft bool) (relsac.IterationStats, error)
	PrepTraining(dev network.Device) (relsac.Placement, error)
	PrepRollouts(dev network.Device) (relsac.Placement, error)
	Config() relsac.Config
}

// Config represents a configuration of an experiment.
type Config struct {
	// Episodes is the total number of episodes to run, including the
	// episodes of a resumed run
	Episodes int

	// Every StepsPerUpdate environment steps, Updates training
	// iterations are performed
	StepsPerUpdate int
	Updates        int

	// Soft selects the entropy regularized objectives
	Soft bool

	// Device holds the networks during training. Rollouts always run
	// on the host.
	Device network.Device
}

// Validate returns an error if c cannot configure an experiment
func (c Config) Validate() error {
	switch {
	case c.Episodes < 1:
		return fmt.Errorf("validate: episodes must be positive")
	case c.StepsPerUpdate < 1:
		return fmt.Errorf("validate: steps per update must be positive")
	case c.Updates < 1:
		return fmt.Errorf("validate: updates must be positive")
	case !c.Device.Valid():
		return fmt.Errorf("validate: invalid device %v", c.Device)
	}
	return nil
}
