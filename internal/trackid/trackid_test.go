package trackid

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFromFileIgnoresNameAndPath(t *testing.T) {
	dir := t.TempDir()
	content := []byte("identical bytes, different names")

	a := writeTemp(t, dir, "a.wav", content)
	b := writeTemp(t, dir, "b.wav", content)

	idA, err := FromFile(a)
	require.NoError(t, err)
	idB, err := FromFile(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB, "identical content must yield identical ids regardless of file name")
}

func TestFromFileIgnoresModTime(t *testing.T) {
	dir := t.TempDir()
	content := []byte("same content, different mtimes")
	path := writeTemp(t, dir, "track.wav", content)

	idBefore, err := FromFile(path)
	require.NoError(t, err)

	older := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, older, older))

	idAfter, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, idBefore, idAfter, "touching mtime must not change the id")
}

func TestFromFileDiffersOnContent(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.wav", []byte("content one"))
	b := writeTemp(t, dir, "b.wav", []byte("content two"))

	idA, err := FromFile(a)
	require.NoError(t, err)
	idB, err := FromFile(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}
