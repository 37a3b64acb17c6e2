package redis

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	inventory "poultry-core/internal/inventory/domain"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultKeyPrefix = "poultry:stock-lock:"
)

// KeyLocker grants stock key locks through Redis so multiple nodes can share
// one guard. Keys must already be in the global acquisition order.
type KeyLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	prefix string
}

// LockerOption configures the locker.
type LockerOption func(*KeyLocker)

// WithTTL overrides the lock TTL.
func WithTTL(ttl time.Duration) LockerOption {
	return func(l *KeyLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) LockerOption {
	return func(l *KeyLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// NewKeyLocker constructs a locker over an existing Redis client.
func NewKeyLocker(client goredis.UniversalClient, opts ...LockerOption) (*KeyLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	locker := &KeyLocker{
		locker: redislock.New(client),
		ttl:    defaultLockTTL,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(locker)
	}
	return locker, nil
}

// Acquire obtains every key in order, retrying with backoff until the
// context deadline. Failure to obtain any key releases the ones held.
func (l *KeyLocker) Acquire(ctx context.Context, keys []string) (func(), error) {
	held := make([]*redislock.Lock, 0, len(keys))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(context.Background())
		}
	}
	retry := redislock.LinearBackoff(50 * time.Millisecond)
	for _, key := range keys {
		lock, err := l.locker.Obtain(ctx, l.prefix+key, l.ttl, &redislock.Options{RetryStrategy: retry})
		if err != nil {
			releaseAll()
			if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &inventory.LockTimeoutError{Key: key}
			}
			return nil, err
		}
		held = append(held, lock)
	}
	return releaseAll, nil
}
