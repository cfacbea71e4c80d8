package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	day := time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC)
	require.Equal(t, "T1@2024-01-02", Key("T1", day))
}

func TestOpenSetSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", FileName)

	idx, err := Open(path)
	require.NoError(t, err)
	require.Zero(t, idx.Len())

	idx.Set("T1@2024-01-02", "E1")
	idx.Set("T2@2024-01-02", "E2")
	idx.Remove("T2@2024-01-02")
	require.NoError(t, idx.Save())

	again, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "E1", again.Get("T1@2024-01-02"))
	require.Equal(t, "", again.Get("T2@2024-01-02"))
	require.Equal(t, 1, again.Len())
}

func TestSaveSkipsCleanIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	idx, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, idx.Save())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	idx.Set("k", "v")
	require.NoError(t, idx.Save())
	idx.Set("k", "v")
	require.False(t, idx.dirty)
}

func TestOpenCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err := Open(path)
	require.Error(t, err)
}
