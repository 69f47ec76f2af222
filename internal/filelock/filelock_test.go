package filelock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "sentinel-data")

	lock, err := Acquire(dataDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "sentinel.lock"), lock.Path())

	// Acquire creates the data directory on demand.
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, lock.Release())
}

func TestAcquire_HeldLockRejected(t *testing.T) {
	dataDir := t.TempDir()

	lock, err := Acquire(dataDir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already supervising")
}

func TestAcquire_ReusableAfterRelease(t *testing.T) {
	dataDir := t.TempDir()

	lock, err := Acquire(dataDir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	again, err := Acquire(dataDir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
