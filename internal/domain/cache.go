package domain

import (
	"context"
	"time"
)

// ChallengeCache provides fast challenge snapshot lookups for read paths.
type ChallengeCache interface {
	Set(ctx context.Context, c Challenge) error
	Get(ctx context.Context, id string) (Challenge, error)
	Invalidate(ctx context.Context, id string) error
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

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelChallenges = "challenges"
	ChannelTrades     = "trades"
	ChannelLifecycle  = "lifecycle"
	StreamLifecycle   = "stream:lifecycle"
)

// ChallengeChannel is the per-challenge channel, e.g. "challenge:abc".
func ChallengeChannel(id string) string {
	return "challenge:" + id
}
