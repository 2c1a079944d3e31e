package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plasmite/plasmite/internal/fsutil"
)

func Test_WriteFileAtomic_Writes_The_Exact_Bytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	data := []byte(`{"ok":true}`)

	require.NoError(t, fsutil.WriteFileAtomic(path, data))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func Test_WriteFileAtomic_Overwrites_Existing_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("first")))
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("second")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}
