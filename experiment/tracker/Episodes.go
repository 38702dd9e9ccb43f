package tracker

import (
	"encoding/json"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/relsac/timestep"
)

// EpisodeRecord holds everything seen in a single episode
type EpisodeRecord struct {
	Episode  int         `json:"ep"`
	Rewards  [][]float64 `json:"l_rewards"` // Per step, per agent
	Returns  []float64   `json:"final_reward"`
	Finished bool        `json:"finished"` // Ended in a terminal state
}

// Episodes records the per-step rewards of every episode and saves
// them as indented JSON so that evaluations can be inspected by hand.
// Unlike the other Trackers, an unfinished last episode is saved too.
type Episodes struct {
	current  *EpisodeRecord
	records  []EpisodeRecord
	filename string
}

// NewEpisodes creates and returns a new *Episodes Tracker
func NewEpisodes(filename string) *Episodes {
	return &Episodes{filename: filename}
}

// Track implements the Tracker interface
func (e *Episodes) Track(step ts.TimeStep) {
	if step.First() {
		e.flush()
		e.current = &EpisodeRecord{
			Episode: len(e.records),
			Rewards: [][]float64{},
			Returns: make([]float64, len(step.Rewards)),
		}
		return
	}
	if e.current == nil {
		panic("track: episode tracked without its first timestep")
	}

	rewards := append([]float64(nil), step.Rewards...)
	e.current.Rewards = append(e.current.Rewards, rewards)
	for i, r := range rewards {
		e.current.Returns[i] += r
	}
	if step.Last() {
		e.current.Finished = step.Terminal()
		e.flush()
	}
}

func (e *Episodes) flush() {
	if e.current != nil {
		e.records = append(e.records, *e.current)
		e.current = nil
	}
}

// Records returns the records of every episode tracked so far,
// including one which has not yet finished
func (e *Episodes) Records() []EpisodeRecord {
	records := append([]EpisodeRecord(nil), e.records...)
	if e.current != nil {
		records = append(records, *e.current)
	}
	return records
}

// Save implements the Tracker interface
func (e *Episodes) Save() error {
	data, err := json.MarshalIndent(e.Records(), "", "    ")
	if err != nil {
		return fmt.Errorf("save: could not encode data: %w", err)
	}
	if err := os.WriteFile(e.filename, data, 0o644); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
