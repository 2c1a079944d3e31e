package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plasmite/plasmite/internal/fsutil"
)

func Test_IdentityOf_Is_Stable_Across_Reopen_And_Differs_Across_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a")
	pathB := filepath.Join(dir, "b")

	require.NoError(t, os.WriteFile(pathA, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("b"), 0o644))

	f1, err := os.Open(pathA)
	require.NoError(t, err)
	defer func() { _ = f1.Close() }()

	f2, err := os.Open(pathA)
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()

	id1, err := fsutil.IdentityOf(f1)
	require.NoError(t, err)
	id2, err := fsutil.IdentityOf(f2)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	fb, err := os.Open(pathB)
	require.NoError(t, err)
	defer func() { _ = fb.Close() }()

	idB, err := fsutil.IdentityOf(fb)
	require.NoError(t, err)
	require.NotEqual(t, id1, idB)
}
