package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Both scripts act only while the key still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// LockManager hands out session leases. A lease is taken with SET NX and a
// short TTL, then renewed in the background at a third of the TTL until it
// is released, so a crashed process frees its session within one TTL.
type LockManager struct {
	c      *Client
	logger *slog.Logger
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:      c,
		logger: logger.With(slog.String("component", "redis_lock")),
	}
}

// Acquire takes the lease for key, or returns domain.ErrLockHeld. The
// returned release func stops renewal and deletes the key; it may be called
// more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	token := uuid.NewString()
	k := lm.c.key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go lm.renew(k, token, ttl, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context is usually cancelled by now.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, lm.c.rdb, []string{k}, token).Err(); err != nil {
				lm.logger.Warn("redis: release lock failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return release, nil
}

func (lm *LockManager) renew(k, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			n, err := renewScript.Run(ctx, lm.c.rdb, []string{k}, token, ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				// Transient; the next tick retries before the TTL runs out.
				lm.logger.Warn("redis: renew lock failed", slog.String("key", k), slog.String("error", err.Error()))
			case n == 0:
				lm.logger.Error("redis: lock lost", slog.String("key", k))
				return
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
