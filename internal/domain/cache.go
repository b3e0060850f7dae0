package domain

import (
	"context"
	"time"
)

// SnapshotCache stores the latest yes/no quote per market so one-shot
// evaluation runs can reuse the prices the last check-tpsl call pushed.
type SnapshotCache interface {
	SetPrices(ctx context.Context, snapshot PriceSnapshot) error
	GetPrice(ctx context.Context, marketID string) (MarketPrice, error)
	GetSnapshot(ctx context.Context, marketIDs []string) (PriceSnapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub and durable streams for ledger events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
