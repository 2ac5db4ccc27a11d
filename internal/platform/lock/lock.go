// Package lock provides Redis-backed mutual exclusion for short critical sections.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// ErrNotObtained is returned when the lock stays held by another holder for
// every retry. It matches shared.ErrBusy.
var ErrNotObtained = fmt.Errorf("lock: not obtained: %w", shared.ErrBusy)

// Options tunes lock acquisition.
type Options struct {
	RetryInterval time.Duration
	MaxRetries    int
}

// Locker obtains named locks from Redis.
type Locker struct {
	client *redislock.Client
	opts   Options
}

// New builds a Locker around a go-redis client.
func New(client *redis.Client, opts Options) *Locker {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Locker{client: redislock.New(client), opts: opts}
}

// Do runs fn while holding key. The lock expires after ttl if the holder dies.
func (l *Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	var strategy redislock.RetryStrategy = redislock.NoRetry()
	if l.opts.MaxRetries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.opts.RetryInterval), l.opts.MaxRetries)
	}
	held, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = held.Release(releaseCtx)
	}()
	return fn(ctx)
}
