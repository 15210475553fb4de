// Package lock provides a Redis-backed lock used to keep one sale submission
// per operator across server replicas.
package lock

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by TryWithLock when the key is already held.
var ErrNotAcquired = errors.New("lock: already held")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker holds locks as Redis keys with a random owner token.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
}

// New returns a Locker on client.
func New(client redis.UniversalClient) *Locker {
	return &Locker{R: client, RetryBackoff: 50 * time.Millisecond}
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.R == nil {
		return "", false, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "lock: setnx")
	}
	return token, ok, nil
}

// TryWithLock runs fn while holding key, or returns ErrNotAcquired at once
// when someone else holds it.
func (l *Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	token, ok, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer l.release(context.WithoutCancel(ctx), key, token)
	return fn(ctx)
}

// WithLock waits for key, retrying every RetryBackoff until ctx is done, and
// runs fn while holding it.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		token, ok, err := l.acquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release deletes key only if it still carries token, so an expired lock
// taken over by another holder is left alone.
func (l *Locker) release(ctx context.Context, key, token string) {
	_ = l.R.Eval(ctx, releaseScript, []string{key}, token).Err()
}
