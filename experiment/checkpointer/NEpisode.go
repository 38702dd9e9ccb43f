package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
)

// nEpisode implements checkpointing every N episodes
type nEpisode struct {
	interval int
	object   Saver // Object to save

	// filename returns the string filename of the file to save the object
	// in.
	//
	// If each checkpoint should be saved in a separate file with each
	// file having an incremented number as a suffix (e.g.
	// model1.gob, model2.gob, ..., modelK.gob), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	//
	// Otherwise, if each checkpoint should be saved in a separate file,
	// but the filename does not matter, use the static function
	// FileTimer to generate the required naming function. For example:
	//
	// n := NewNEpisode(10, object, FileTimer("model", ".gob"))
	filename func() string
}

// NewNEpisode returns a checkpointer that checkpoints every n episodes.
// Parent directories of the generated filenames are created as needed.
func NewNEpisode(n int, object Saver,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNEpisode: interval must be positive, "+
			"got %v", n)
	}
	return &nEpisode{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object if episode is a multiple of the
// checkpointing interval
func (n *nEpisode) Checkpoint(episode int) (string, bool, error) {
	if episode%n.interval != 0 {
		return "", false, nil
	}

	path := n.filename()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("checkpoint: %w", err)
	}
	if err := n.object.Save(path, episode); err != nil {
		return "", false, fmt.Errorf("checkpoint: %w", err)
	}
	return path, true, nil
}
