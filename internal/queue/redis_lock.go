package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"clinic-triage/internal/models"
)

// RedisLock is a lease-based mutex in Redis that serialises claims across API
// replicas. Each holder writes a random token so an expired holder cannot
// release a lease taken over by someone else.
type RedisLock struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	wait    time.Duration
	retryIn time.Duration
}

// NewRedisLock builds a claim lock. ttl bounds how long a crashed holder can
// block the queue; wait bounds how long Lock spins before reporting a conflict.
func NewRedisLock(client *redis.Client, key string, ttl, wait time.Duration) *RedisLock {
	if key == "" {
		key = "triage:claim-lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &RedisLock{
		client:  client,
		key:     key,
		ttl:     ttl,
		wait:    wait,
		retryIn: 10 * time.Millisecond,
	}
}

// Lock acquires the lease, returning a release func. If the lease cannot be
// taken within the wait window the error wraps models.ErrConflict.
func (l *RedisLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", l.key, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("claim lock %s busy: %w", l.key, models.ErrConflict)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryIn):
		}
	}
}

// release uses its own context so a cancelled request still frees the lease.
func (l *RedisLock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}

// Holder returns the current lease token, or "" when free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	v, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
