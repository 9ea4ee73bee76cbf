package cachefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesFileAndParents(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "file.cer")

	require.NoError(t, WriteAtomic(target, []byte("hello")))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), ".tmp-"))
	}
}

func TestCleanupRemovesUntouchedFilesAndEmptyDirs(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "repo", "keep.cer")
	stale := filepath.Join(root, "repo", "stale.cer")
	require.NoError(t, WriteAtomic(keep, []byte("k")))
	require.NoError(t, WriteAtomic(stale, []byte("s")))

	emptyDir := filepath.Join(root, "empty")
	require.NoError(t, MkPath(emptyDir))

	ft := NewFilepathTree()
	ft.Touch(keep)

	result, err := ft.Cleanup(root)
	require.NoError(t, err)
	require.Equal(t, 1, result.Files)

	_, err = os.Stat(keep)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(emptyDir)
	require.True(t, os.IsNotExist(err))
}
