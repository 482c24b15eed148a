//go:build !windows

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

func TestFileLock_FollowsReplacedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.lock")
	stale, err := newFileLock(path)
	require.NoError(t, err)
	defer stale.Unlock()

	// 打开之后锁文件被删除, 新的持有者创建了新文件
	require.NoError(t, os.Remove(path))
	owner, err := newFileLock(path)
	require.NoError(t, err)
	require.NoError(t, owner.Lock(context.Background(), time.Second))
	defer owner.Unlock()

	ok, err := stale.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, owner.Unlock())
	ok, err = stale.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
}
