package collect

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestExpandDirectory(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"bugreport.txt":         "== dumpstate: 2024-03-05 10:11:12\n",
		"FS/data/anr/anr_1":     "----- pid 1 at 2024-03-05 10:11:10 -----\n",
		"FS/data/tombstones/t0": "*** ***\n",
		".git/config":           "x",
		"screenshot.png":        "x",
		"proto/dumpstate.pb":    "x",
	})

	got, err := Expand([]string{dir}, DefaultExclude)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "FS", "data", "anr", "anr_1"),
		filepath.Join(dir, "FS", "data", "tombstones", "t0"),
		filepath.Join(dir, "bugreport.txt"),
	}, got)
}

func TestExpandGlobAndDuplicates(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a/logcat.txt": "x",
		"b/logcat.txt": "x",
		"b/dmesg.txt":  "x",
	})

	got, err := Expand([]string{
		filepath.Join(dir, "**", "logcat*.txt"),
		filepath.Join(dir, "a", "logcat.txt"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a", "logcat.txt"),
		filepath.Join(dir, "b", "logcat.txt"),
	}, got)
}

func TestExpandKeepsExplicitFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{".hidden": "x"})
	got, err := Expand([]string{filepath.Join(dir, ".hidden")}, DefaultExclude)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExpandMissingInput(t *testing.T) {
	_, err := Expand([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen(t *testing.T) {
	dir := writeTree(t, map[string]string{"logcat.txt": "hello"})
	set, err := Open([]string{filepath.Join(dir, "logcat.txt")})
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.Artifacts, 1)
	a := set.Artifacts[0]
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "logcat.txt")), a.Name)
	assert.False(t, a.ModTime.IsZero())
	b, err := io.ReadAll(a.Reader)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.NoError(t, set.Close())
}

func TestOpenMissingClosesOthers(t *testing.T) {
	dir := writeTree(t, map[string]string{"logcat.txt": "hello"})
	_, err := Open([]string{filepath.Join(dir, "logcat.txt"), filepath.Join(dir, "gone")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
