package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/relsac/timestep"
)

// Return tracks and saves the episodic return of every agent in an
// experiment. When an environment returns a TimeStep, this Tracker
// will extract the rewards and accumulate the return of each agent for
// each episode in the experiment.
//
// Note: An episode must finish for this Tracker to save its data.
// If the last episode in an experiment does not finish, that episode's
// return will not be saved.
type Return struct {
	lastTimeStep   int
	currentReturn  []float64
	episodeReturns [][]float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn(filename string) *Return {
	return &Return{lastTimeStep: -1, filename: filename}
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker will store all rewards seen in the
// episode, and save the cumulative rewards for that episode as the
// episodic returns. When a new episode starts, this method will
// automatically detect this and start accumulating the rewards for this
// new episode separately from the rewards seen on previous episodes.
//
// Track panics if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	if r.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number)
		panic(msg)
	}

	if step.First() {
		r.currentReturn = make([]float64, len(step.Rewards))
	} else {
		for i, reward := range step.Rewards {
			r.currentReturn[i] += reward
		}
	}

	if !step.Last() {
		r.lastTimeStep = step.Number
		return
	}

	// Episode has ended, save the returns and begin tracking the
	// returns for a new episode
	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.currentReturn = nil
	r.lastTimeStep = -1
}

// Returns returns the per-agent returns of every finished episode
func (r *Return) Returns() [][]float64 {
	return r.episodeReturns
}

// LastReturn returns the per-agent returns of the most recently
// finished episode
func (r *Return) LastReturn() ([]float64, bool) {
	if len(r.episodeReturns) == 0 {
		return nil, false
	}
	return r.episodeReturns[len(r.episodeReturns)-1], true
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() error {
	return save(r.filename, r.episodeReturns)
}
