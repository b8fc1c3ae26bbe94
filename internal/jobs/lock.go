// Package jobs runs background tasks: a cron schedule, a Redis trigger queue,
// a single-runner lock and whole-task retry with exponential backoff.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLocked is returned by TryLock when another runner holds the lock.
var ErrLocked = errors.New("lock held by another runner")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out named locks that expire after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker storing keys under prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock acquires key or returns ErrLocked.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	key = l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "release lock")
	}
	return nil
}

// LocalLocker is an in-process Locker for deployments without Redis.
// Expiry is not enforced; a lock is held until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires key or returns ErrLocked.
func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	return &localLock{owner: l, key: key}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	once  sync.Once
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
	})
	return nil
}
