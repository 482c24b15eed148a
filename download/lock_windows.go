//go:build windows

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// fileLock 基于 LockFileEx 的跨进程文件锁
type fileLock struct {
	path   string
	file   *os.File
	locked bool
}

func newFileLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开锁文件失败: %w", err)
	}
	return &fileLock{path: path, file: file}, nil
}

// TryLock 尝试加锁一次, 锁被占用时返回 false
func (l *fileLock) TryLock() (bool, error) {
	if l.locked {
		return true, nil
	}
	err := windows.LockFileEx(
		windows.Handle(l.file.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1, 0,
		&windows.Overlapped{},
	)
	switch {
	case err == nil:
		l.locked = true
		return true, nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
		return false, nil
	}
	return false, fmt.Errorf("锁定文件 %s 失败: %w", l.path, err)
}

// Lock 以非阻塞方式轮询加锁, 直到成功、超时或 ctx 结束
func (l *fileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if l.locked {
		return nil
	}

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond
	for {
		ok, err := l.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("等待锁文件 %s 超时 (%v)", l.path, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

// Unlock 释放锁并关闭文件, 可重复调用
func (l *fileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	var err error
	if l.locked {
		err = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &windows.Overlapped{})
		l.locked = false
	}
	l.file.Close()
	l.file = nil
	return err
}

// removeLockFile 锁文件未被占用时删除, 返回是否删除
//
// 其它进程打开着的文件无法删除, 删除失败视为仍在使用
func removeLockFile(path string) (bool, error) {
	l, err := newFileLock(path)
	if err != nil {
		return false, err
	}
	ok, err := l.TryLock()
	l.Unlock()
	if err != nil || !ok {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		return false, nil
	}
	return true, nil
}
