// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"time"
)

// CounterStore manages TTL-windowed abuse counters. Implementations must make
// Increment atomic with its conditional expiry: the TTL is attached exactly
// once, when the counter is first created, even under concurrent first
// increments.
type CounterStore interface {
	// Increment adds one to the counter and returns the new count.
	// A freshly created counter gets the window as its TTL.
	Increment(ctx context.Context, key string, window time.Duration) (int, error)

	// Count returns the current counter value, zero if absent or expired.
	Count(ctx context.Context, key string) (int, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}
