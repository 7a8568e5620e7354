package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-triage/internal/models"
)

func newTestLock(t *testing.T, wait time.Duration) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLock(client, "test:lock", time.Minute, wait), mr
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	lock, _ := newTestLock(t, 50*time.Millisecond)

	unlock, err := lock.Lock(ctx)
	require.NoError(t, err)

	_, err = lock.Lock(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict), "expected conflict, got %v", err)

	unlock()
	holder, err := lock.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)

	unlock2, err := lock.Lock(ctx)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLockReleaseKeepsForeignLease(t *testing.T) {
	ctx := context.Background()
	lock, mr := newTestLock(t, 50*time.Millisecond)

	unlock, err := lock.Lock(ctx)
	require.NoError(t, err)

	// Simulate lease expiry and takeover by another replica.
	mr.Del("test:lock")
	require.NoError(t, mr.Set("test:lock", "other-holder"))

	unlock()
	holder, err := lock.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other-holder", holder)
}

func TestRedisLockSerialises(t *testing.T) {
	ctx := context.Background()
	lock, _ := newTestLock(t, 5*time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(ctx)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}
