package download

import (
	"context"
	"sync"
	"time"
)

// keyedMutex 按 key 互斥, 支持 ctx 取消
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) acquire(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock 获取 key 对应的锁, 返回解锁函数
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	l := k.acquire(key)
	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

// 同一进程内所有下载器共享, 按目标路径互斥
var pathLocks keyedMutex

// lockPath 对目标文件加进程内锁与跨进程文件锁
func lockPath(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	unlock, err := pathLocks.Lock(ctx, path)
	if err != nil {
		return nil, err
	}
	fl, err := newFileLock(path + lockSuffix)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := fl.Lock(ctx, timeout); err != nil {
		fl.Unlock()
		unlock()
		return nil, err
	}
	return func() {
		fl.Unlock()
		unlock()
	}, nil
}
