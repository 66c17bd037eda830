package counter

import (
	"context"
	"sync"
	"time"
)

// InMemoryCounterStore implements ports.CounterStore with a process-local map.
// Suitable for single-instance deployments and tests; use RedisCounterStore
// when counters must be shared across instances.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*entry

	// now is swappable for tests.
	now func() time.Time
}

type entry struct {
	count     int
	expiresAt time.Time
}

// NewInMemoryCounterStore creates a new in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		counters: make(map[string]*entry),
		now:      time.Now,
	}
}

// Increment adds one to the counter, creating it with the window TTL if absent
// or expired. The single mutex makes create-with-TTL atomic.
func (s *InMemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.counters[key]
	if e == nil || !e.expiresAt.After(now) {
		e = &entry{expiresAt: now.Add(window)}
		s.counters[key] = e
	}
	e.count++
	return e.count, nil
}

// Count returns the current counter value, zero if absent or expired.
func (s *InMemoryCounterStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.counters[key]
	if e == nil {
		return 0, nil
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.counters, key)
		return 0, nil
	}
	return e.count, nil
}

// Reset clears the counter for a key.
func (s *InMemoryCounterStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// SetNowFunc overrides the store clock. Test hook.
func (s *InMemoryCounterStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
