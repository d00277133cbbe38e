// Package lock serialises concurrent work on the same key. It narrows races
// on verification evidence; the database compare-and-set stays authoritative.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock: not acquired")

// Locker acquires a named lock. The returned unlock func is always non-nil
// when err is nil.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RedisLocker is a distributed lock backed by redsync.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

func NewRedisLocker(rdb *redis.Client, expiry time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		expiry: expiry,
		tries:  20,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		"lock:"+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}
	return func() {
		// Expiry releases the key if this fails.
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}, nil
}

// LocalLocker is an in-process lock for single-instance deployments. Keys
// expire after ttl so a crashed holder never wedges the key.
type LocalLocker struct {
	held     *cache.Cache
	ttl      time.Duration
	interval time.Duration
}

func NewLocalLocker(ttl time.Duration) *LocalLocker {
	return &LocalLocker{
		held:     cache.New(ttl, 0),
		ttl:      ttl,
		interval: 25 * time.Millisecond,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		// Add fails while an unexpired entry exists.
		if err := l.held.Add(key, struct{}{}, l.ttl); err == nil {
			return func() { l.held.Delete(key) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}
