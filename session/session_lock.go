package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tompei-viewer/constants"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// Locker serializes work on one patient across requests and workers.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker locks within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (locker *LocalLocker) Obtain(ctx context.Context, key string) (func(), error) {
	locker.mu.Lock()
	lock, found := locker.locks[key]
	if !found {
		lock = make(chan struct{}, 1)
		locker.locks[key] = lock
	}
	locker.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisLocker locks across processes sharing one Redis. A held lock is
// refreshed every third of its TTL until released.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func (locker *RedisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	lock, err := locker.client.Obtain(ctx, constants.LockPrefix+key, locker.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go locker.keepAlive(lock, key, done, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			if err := lock.Release(context.Background()); err != nil {
				locker.logger.Warn("Cannot release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (locker *RedisLocker) keepAlive(lock *redislock.Lock, key string, done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(locker.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), locker.ttl, nil); err != nil {
				locker.logger.Warn("Cannot refresh lock", zap.String("key", key), zap.Error(err))
				return
			}
		}
	}
}
