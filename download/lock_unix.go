//go:build !windows

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// fileLock 基于 flock 的跨进程文件锁
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
//
// 加锁后若锁文件已被删除或替换, 重新打开路径上的文件再试,
// 保证持有的锁始终对应路径上当前的文件
func (l *fileLock) TryLock() (bool, error) {
	if l.locked {
		return true, nil
	}
	for {
		if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return false, nil
			}
			return false, fmt.Errorf("锁定文件 %s 失败: %w", l.path, err)
		}
		held, err := l.file.Stat()
		if err != nil {
			syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
			return false, fmt.Errorf("读取锁文件失败: %w", err)
		}
		current, err := os.Stat(l.path)
		if err == nil && os.SameFile(held, current) {
			l.locked = true
			return true, nil
		}
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			l.file = nil
			return false, fmt.Errorf("打开锁文件失败: %w", err)
		}
		l.file = file
	}
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
		err = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.locked = false
	}
	l.file.Close()
	l.file = nil
	return err
}

// removeLockFile 锁文件未被占用时在持有锁的状态下删除, 返回是否删除
func removeLockFile(path string) (bool, error) {
	l, err := newFileLock(path)
	if err != nil {
		return false, err
	}
	defer l.Unlock()
	ok, err := l.TryLock()
	if err != nil || !ok {
		return false, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("删除锁文件失败: %w", err)
	}
	return true, nil
}
