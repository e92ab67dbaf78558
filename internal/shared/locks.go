package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OrderLockKey builds lock keys for order critical sections.
func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("lpo:order:%d:lock", orderID)
}

// AssetLockKey builds lock keys for asset critical sections.
func AssetLockKey(assetID int64) string {
	return fmt.Sprintf("asset:%d:lock", assetID)
}

// Locker serialises mutations per entity key. Acquire waits at most wait and
// fails with ErrTimeout afterwards; the returned func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (func(), error)
}

func lockTimeout(key string, wait time.Duration) error {
	return fmt.Errorf("%w: lock %s not acquired within %s", ErrTimeout, key, wait)
}

// RedisLocker implements Locker with SET NX PX and a token-checked release,
// so locks are shared by every engine instance using the same Redis.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// NewRedisLocker constructs a RedisLocker. ttl bounds how long a crashed
// holder can keep a key.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, lockTimeout(key, wait)
		}
		pause := l.retry
		if remaining < pause {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// LocalLocker implements Locker in-process. It is used when Redis is not
// configured and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	release := func() {
		<-slot.ch
		l.unref(key, slot)
	}

	if wait <= 0 {
		select {
		case slot.ch <- struct{}{}:
			return release, nil
		default:
			l.unref(key, slot)
			return nil, lockTimeout(key, wait)
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case slot.ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		l.unref(key, slot)
		return nil, lockTimeout(key, wait)
	case <-ctx.Done():
		l.unref(key, slot)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unref(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
