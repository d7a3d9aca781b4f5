package redisclient

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Serialises(t *testing.T) {
	l := NewLocalLocker(time.Second)
	id := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithProviderLock(context.Background(), id, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_TimesOut(t *testing.T) {
	l := NewLocalLocker(10 * time.Millisecond)
	id := uuid.New()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithProviderLock(context.Background(), id, func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := l.WithProviderLock(context.Background(), id, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	close(done)
}

func TestLocalLocker_ProvidersIndependent(t *testing.T) {
	l := NewLocalLocker(10 * time.Millisecond)

	err := l.WithProviderLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return l.WithProviderLock(ctx, uuid.New(), func(ctx context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestLocalLocker_PropagatesError(t *testing.T) {
	l := NewLocalLocker(time.Second)
	boom := errors.New("boom")
	id := uuid.New()

	err := l.WithProviderLock(context.Background(), id, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// released after an error
	err = l.WithProviderLock(context.Background(), id, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRedisProviderLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisProviderLocker(client, 2*time.Second, 50*time.Millisecond)
	id := uuid.New()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithProviderLock(context.Background(), id, func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err = l.WithProviderLock(context.Background(), id, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	close(done)

	require.Eventually(t, func() bool {
		return l.WithProviderLock(context.Background(), id, func(ctx context.Context) error { return nil }) == nil
	}, time.Second, 20*time.Millisecond)
}
