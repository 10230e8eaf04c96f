package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureSubdDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureSubdDir("", "images")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(tmp, "images"))
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, want, gotResolved)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureSubdDir_UnderBase(t *testing.T) {
	base := t.TempDir()

	got, err := EnsureSubdDir(base, filepath.Join("a", "b"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "a", "b"), got)
}

func TestEnsureSubdDir_Idempotent(t *testing.T) {
	base := t.TempDir()

	first, err := EnsureSubdDir(base, "images")
	require.NoError(t, err)

	second, err := EnsureSubdDir(base, "images")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureSubdDir_FailsIfFileWithSameNameExists(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "images"), []byte("x"), 0o660))

	_, err := EnsureSubdDir(base, "images")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestWriteFileAtomic_WritesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.bin")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), b)

	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), b)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomic_FailsWhenDirIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteFileAtomic(filepath.Join(blocker, "a.bin"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestSyncDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SyncDir(dir))
	require.Error(t, SyncDir(filepath.Join(dir, "missing")))
}
