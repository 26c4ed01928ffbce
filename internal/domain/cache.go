package domain

import (
	"context"
	"time"
)

// RateLimiter throttles calls to an exchange. Keys are exchange ids, so
// several bot processes share one budget per exchange.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager guards cycle execution so that only one process moves funds
// at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of the cycle event audit stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans cycle events out to subscribers and keeps a bounded audit
// stream of them.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
