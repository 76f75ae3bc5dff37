package domain

import (
	"context"
	"time"
)

// BookCache mirrors the latest book snapshot per symbol for readers outside
// the simulator process.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap OrderBookSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (OrderBookSnapshot, error)
}

// Publisher broadcasts payloads on a channel. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber receives channel payloads until ctx is cancelled. A channel
// name may be a glob pattern such as "execsim:*".
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StreamMessage is one entry of a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// StreamReader replays a durable stream. Entries strictly after lastID are
// returned, oldest first; "" and "0-0" read from the beginning.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// SignalBus is the event transport: pub/sub for live consumers plus a
// durable stream for replay.
type SignalBus interface {
	Publisher
	Subscriber
	StreamReader
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter admits or refuses requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive leases that expire unless held by a live
// process.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
