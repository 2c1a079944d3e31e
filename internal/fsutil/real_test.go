package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plasmite/plasmite/internal/fsutil"
)

func Test_Real_OpenFile_Creates_And_WriteFile_ReadFile_RoundTrip(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	path := filepath.Join(t.TempDir(), "data.bin")

	f, err := r.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := r.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func Test_Real_Exists_Reports_False_For_Missing_Path_And_True_After_Creation(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	path := filepath.Join(t.TempDir(), "maybe.bin")

	exists, err := r.Exists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	exists, err = r.Exists(path)
	require.NoError(t, err)
	require.True(t, exists)
}

func Test_Real_MkdirAll_Creates_Nested_Directories(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	nested := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, r.MkdirAll(nested, 0o755))

	info, err := r.Stat(nested)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func Test_Real_Rename_Moves_File_To_New_Path(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.bin")
	newPath := filepath.Join(dir, "new.bin")

	require.NoError(t, os.WriteFile(oldPath, []byte("content"), 0o644))
	require.NoError(t, r.Rename(oldPath, newPath))

	exists, err := r.Exists(oldPath)
	require.NoError(t, err)
	require.False(t, exists)

	got, err := r.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, []byte("content"), got)
}

func Test_Real_Remove_Deletes_The_File(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	path := filepath.Join(t.TempDir(), "gone.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, r.Remove(path))

	exists, err := r.Exists(path)
	require.NoError(t, err)
	require.False(t, exists)
}

func Test_Real_Open_On_Missing_File_Returns_An_Error(t *testing.T) {
	t.Parallel()

	r := fsutil.NewReal()
	_, err := r.Open(filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
}
