package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/experiment/tracker"
	"github.com/samuelfneumann/relsac/network"
	"github.com/samuelfneumann/relsac/timestep"
)

// Actor selects joint actions for a team of agents
type Actor interface {
	Act(obs [][]float64, explore bool) ([]int, error)
	PrepRollouts(dev network.Device) (relsac.Placement, error)
}

// Evaluate runs episodes of e with the most probable actions of a and
// returns the per-agent return of every episode. Every timestep is
// also passed to trackers. Cancelling ctx stops the evaluation after
// the current episode. Each call to onEpisode, if not nil, follows a
// finished episode.
func Evaluate(ctx context.Context, e environment.Environment, a Actor,
	episodes int, onEpisode func(), trackers ...tracker.Tracker) ([][]float64,
	error) {
	if _, err := a.PrepRollouts(network.Host); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	returns := tracker.NewReturn("")
	track := func(step timestep.TimeStep) {
		returns.Track(step)
		for _, t := range trackers {
			t.Track(step)
		}
	}
	for ep := 0; ep < episodes; ep++ {
		if err := ctx.Err(); err != nil {
			return returns.Returns(), err
		}

		step, err := e.Reset()
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		track(step)
		for !step.Last() {
			actions, err := a.Act(step.Observations, false)
			if err != nil {
				return nil, fmt.Errorf("evaluate: %w", err)
			}
			if step, err = e.Step(actions); err != nil {
				return nil, fmt.Errorf("evaluate: %w", err)
			}
			track(step)
		}
		if onEpisode != nil {
			onEpisode()
		}
	}
	return returns.Returns(), nil
}
