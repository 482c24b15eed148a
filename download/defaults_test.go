package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCacheDir(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	assert.Equal(t, "/configured", ResolveCacheDir("/configured"))
	dir := ResolveCacheDir("")
	assert.Equal(t, "checkpoints", filepath.Base(dir))
	assert.Equal(t, "carvekit", filepath.Base(filepath.Dir(dir)))

	t.Setenv(CacheDirEnv, "/from-env")
	assert.Equal(t, "/from-env", ResolveCacheDir("/configured"))
}

func TestCleanup(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tracer_b7")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	old := time.Now().Add(-48 * time.Hour)
	files := map[string]bool{
		"tracer_b7.pth.2abc.part": true,
		"tracer_b7.pth.lock":      true,
		"tracer_b7.pth":           false,
		"fresh.pth.3def.part":     false,
	}
	for name, stale := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		if stale || name == "tracer_b7.pth" {
			require.NoError(t, os.Chtimes(p, old, old))
		}
	}

	removed, err := Cleanup(root, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	for name, stale := range files {
		if stale {
			assert.NoFileExists(t, filepath.Join(dir, name))
		} else {
			assert.FileExists(t, filepath.Join(dir, name))
		}
	}

	removed, err = Cleanup(filepath.Join(root, "missing"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCleanup_KeepsHeldLock(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "u2net.pth.lock")
	held, err := newFileLock(path)
	require.NoError(t, err)
	require.NoError(t, held.Lock(context.Background(), time.Second))
	defer held.Unlock()
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	removed, err := Cleanup(root, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, path)

	// 锁仍然互斥
	other, err := newFileLock(path)
	require.NoError(t, err)
	defer other.Unlock()
	ok, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, other.Unlock())

	require.NoError(t, held.Unlock())
	removed, err = Cleanup(root, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, path)
}
