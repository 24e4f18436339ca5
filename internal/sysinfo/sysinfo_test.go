package sysinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsage(t *testing.T) {
	t.Parallel()

	stats, err := MemoryUsage()
	require.NoError(t, err)
	assert.Greater(t, stats.TotalGB, 0.0)
	assert.GreaterOrEqual(t, stats.TotalGB, stats.AvailableGB)
}

func TestHasMemoryForFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	small := filepath.Join(dir, "small.bin")
	require.NoError(t, os.WriteFile(small, make([]byte, 1024), 0o644))

	assert.True(t, HasMemoryForFile(small, 3.0))

	// Unknown files assume enough memory rather than blocking work.
	assert.True(t, HasMemoryForFile(filepath.Join(dir, "missing"), 3.0))
}

func TestHasDiskSpace(t *testing.T) {
	t.Parallel()

	assert.True(t, HasDiskSpace(os.TempDir(), 0.001))
	assert.True(t, HasDiskSpace("/nonexistent-path-zzz", 1), "unknown mounts are not treated as full")
}
