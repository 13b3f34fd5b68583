package fsext

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsurePrivateDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsurePrivateDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, PrivateDirMode, info.Mode().Perm())

		// 已存在的目录会被收紧
		loose := filepath.Join(t.TempDir(), "loose")
		require.NoError(t, os.Mkdir(loose, 0o755))
		require.NoError(t, EnsurePrivateDir(loose))
		info, err = os.Stat(loose)
		require.NoError(t, err)
		require.Equal(t, PrivateDirMode, info.Mode().Perm())
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, WriteFileAtomic(path, []byte(`{"v":1}`)))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"v":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(data))

	// 不留下临时文件
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, PrivateFileMode, info.Mode().Perm())
	}
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	t.Parallel()

	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "x"), []byte("x"))
	require.Error(t, err)
}

func TestRestrictFile(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("权限位在 Windows 上不适用")
	}

	path := filepath.Join(t.TempDir(), "db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, RestrictFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, PrivateFileMode, info.Mode().Perm())
}
