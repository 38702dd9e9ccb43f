package checkpointer

import "fmt"

// Naming determines how periodic checkpoint files are named
type Naming string

const (
	// Enumerate suffixes the checkpoint number: model_ep1.gob, ...
	Enumerate Naming = "enumerate"

	// Timestamp suffixes the UTC time of saving
	Timestamp Naming = "timestamp"
)

// Validate returns an error if n is not a known Naming
func (n Naming) Validate() error {
	switch n {
	case Enumerate, Timestamp:
		return nil
	}
	return fmt.Errorf("validate: unknown checkpoint naming %q", n)
}

// Filenames returns a filename generator for n. Enumerated names
// continue after checkpoint number start.
func Filenames(n Naming, start int, filename,
	extension string) (func() string, error) {
	switch n {
	case Enumerate:
		return FilenameEnumerator(start, filename, extension), nil
	case Timestamp:
		return FileTimer(filename, extension, nil), nil
	}
	return nil, fmt.Errorf("filenames: unknown checkpoint naming %q", n)
}
