package checkpointer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileSaver struct {
	episodes []int
	err      error
}

func (f *fileSaver) Save(path string, episode int) error {
	if f.err != nil {
		return f.err
	}
	f.episodes = append(f.episodes, episode)
	return os.WriteFile(path, []byte("checkpoint"), 0o644)
}

func TestNEpisode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	saver := &fileSaver{}
	c, err := NewNEpisode(2, saver,
		FilenameEnumerator(0, filepath.Join(dir, "model_ep"), ".gob"))
	require.NoError(t, err)

	var paths []string
	for ep := 1; ep <= 5; ep++ {
		path, saved, err := c.Checkpoint(ep)
		require.NoError(t, err)
		assert.Equal(t, ep%2 == 0, saved)
		if saved {
			paths = append(paths, path)
		}
	}

	assert.Equal(t, []int{2, 4}, saver.episodes)
	assert.Equal(t, []string{
		filepath.Join(dir, "model_ep1.gob"),
		filepath.Join(dir, "model_ep2.gob"),
	}, paths)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}

func TestNEpisodeErrors(t *testing.T) {
	_, err := NewNEpisode(0, &fileSaver{}, FileTimer("model", ".gob", nil))
	assert.Error(t, err)

	failure := errors.New("disk full")
	c, err := NewNEpisode(1, &fileSaver{err: failure},
		FileTimer(filepath.Join(t.TempDir(), "model"), ".gob", nil))
	require.NoError(t, err)
	_, saved, err := c.Checkpoint(1)
	assert.ErrorIs(t, err, failure)
	assert.False(t, saved)
}

func TestFileTimer(t *testing.T) {
	clock := time.Date(2024, 3, 9, 14, 5, 7, 42, time.FixedZone("x", 3600))
	names := FileTimer("run/model", ".gob", func() time.Time { return clock })

	assert.Equal(t, "run/model-20240309T130507.000000042Z.gob", names())
	assert.Equal(t, "run/model-20240309T130507.000000042Z-1.gob", names())
	clock = clock.Add(time.Second)
	assert.Equal(t, "run/model-20240309T130508.000000042Z.gob", names())

	name := FileTimer("run/model", ".gob", nil)()
	assert.True(t, strings.HasPrefix(name, "run/model-"))
	assert.True(t, strings.HasSuffix(name, "Z.gob"))
}

func TestFilenames(t *testing.T) {
	names, err := Filenames(Enumerate, 3, "model_ep", ".gob")
	require.NoError(t, err)
	assert.Equal(t, "model_ep4.gob", names())

	names, err = Filenames(Timestamp, 3, "model", ".gob")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(names(), "model-"))

	assert.NoError(t, Timestamp.Validate())
	assert.Error(t, Naming("random").Validate())
	_, err = Filenames("random", 0, "model", ".gob")
	assert.Error(t, err)
}
