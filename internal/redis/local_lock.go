package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// localLocker is an in-process Locker for single-instance runs and tests.
type localLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) Locker {
	return &localLocker{
		slots: make(map[uuid.UUID]chan struct{}),
		wait:  wait,
	}
}

func (l *localLocker) slot(providerID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[providerID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[providerID] = ch
	}
	return ch
}

func (l *localLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.slot(providerID)

	t := time.NewTimer(l.wait)
	defer t.Stop()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return ErrLockNotAcquired
	}
	defer func() { <-ch }()

	return fn(ctx)
}
