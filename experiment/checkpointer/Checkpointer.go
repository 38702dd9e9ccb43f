// Package checkpointer implements periodic checkpointing of learners
// during an experiment
package checkpointer

// Saver is an object that can be saved to a file, such as a
// relsac.RelationalSAC
type Saver interface {
	Save(path string, episode int) error
}

// Checkpointer checkpoints/saves objects at the end of episodes. The
// path of the checkpoint is returned when one is written.
type Checkpointer interface {
	Checkpoint(episode int) (path string, saved bool, err error)
}
