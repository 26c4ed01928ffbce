package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Both scripts act only while the key still holds the caller's token.
const (
	releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`
	extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`
)

// LockManager implements domain.LockManager with SET NX and token-checked
// release. A held lock is extended in the background at a third of its TTL,
// since a cycle can take longer than any fixed TTL while withdrawals confirm.
type LockManager struct {
	c       *Client
	release *redis.Script
	extend  *redis.Script
	logger  *slog.Logger
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:       c,
		release: redis.NewScript(releaseLua),
		extend:  redis.NewScript(extendLua),
		logger:  logger.With(slog.String("component", "redis_lock")),
	}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld. The returned
// func releases it and may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	k := lm.c.Key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.keepAlive(k, token, ttl, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			// The caller's context may already be cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lm.release.Run(rctx, lm.c.rdb, []string{k}, token).Err(); err != nil {
				lm.logger.Warn("lock release failed", slog.String("key", k), slog.String("error", err.Error()))
			}
		})
	}, nil
}

func (lm *LockManager) keepAlive(k, token string, ttl time.Duration, stop <-chan struct{}) {
	every := ttl / 3
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := lm.extend.Run(ctx, lm.c.rdb, []string{k}, token, ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil:
				lm.logger.Warn("lock extend failed", slog.String("key", k), slog.String("error", err.Error()))
			case n == 0:
				lm.logger.Error("lock lost", slog.String("key", k))
				return
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
