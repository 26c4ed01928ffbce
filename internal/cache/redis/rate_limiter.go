package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// sorted set per key, so every process calling one exchange shares a budget.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script

	mu       sync.RWMutex
	limits   map[string]Limit
	fallback Limit
}

// NewRateLimiter creates a RateLimiter. Keys without a SetLimit budget use
// fallback; a zero fallback means one request per second.
func NewRateLimiter(c *Client, fallback Limit) *RateLimiter {
	if fallback.Requests <= 0 || fallback.Window <= 0 {
		fallback = Limit{Requests: 1, Window: time.Second}
	}
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limits:        make(map[string]Limit),
		fallback:      fallback,
	}
}

// SetLimit sets the budget Wait uses for key.
func (rl *RateLimiter) SetLimit(key string, l Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[key] = l
}

func (rl *RateLimiter) limitFor(key string) Limit {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if l, ok := rl.limits[key]; ok {
		return l
	}
	return rl.fallback
}

// Allow counts one request against key and reports whether it fits in the
// window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.slidingWindow.Run(ctx, rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, nil
}

// Wait blocks until key's budget admits one more request.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	l := rl.limitFor(key)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
		ok, err := rl.Allow(ctx, key, l.Requests, l.Window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer.Reset(waitPollInterval)
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
