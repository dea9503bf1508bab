package cron

import (
	"context"
	"sync"
)

// Lock keeps two cycles of the same Service from overlapping.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock guards process-local state; the swept caches are never shared
// across instances so no distributed lock is needed.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}
