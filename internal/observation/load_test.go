package observation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b-pass.json"), `[{"x":1,"y":2,"z":3},{"x":2,"y":2,"z":3}]`)
	writeFile(t, filepath.Join(dir, "a-pass.JSON"), `[{"az":10,"el":20,"dist":300}]`)
	writeFile(t, filepath.Join(dir, "broken.json"), `[{"x":1}]`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `ignored`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.json"), `[{"x":0,"y":0,"z":0}]`)
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.json"), filepath.Join(dir, "link.json")))

	r := newTestRegistry(t, nil)
	added, err := r.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "a-pass", added[0].Label)
	assert.Equal(t, "b-pass", added[1].Label)
	assert.Len(t, added[1].Points, 2)
	assert.Equal(t, 2, r.Len())
}

func TestLoadDir_Missing(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
