package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"idverify/internal/journey/models"
	"idverify/pkg/platform/sentinel"
)

// InMemoryJourneyStore keeps journey state in a process-local map. Updates use
// optimistic versioning so two racing writers for the same journey cannot
// silently lose an update.
type InMemoryJourneyStore struct {
	mu       sync.RWMutex
	journeys map[uuid.UUID]*models.JourneyState
}

// NewInMemoryJourneyStore creates a new in-memory journey store.
func NewInMemoryJourneyStore() *InMemoryJourneyStore {
	return &InMemoryJourneyStore{journeys: make(map[uuid.UUID]*models.JourneyState)}
}

// Create inserts a new journey row.
func (s *InMemoryJourneyStore) Create(_ context.Context, journey *models.JourneyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.journeys[journey.JourneyID]; exists {
		return sentinel.ErrConflict
	}
	j := *journey
	s.journeys[journey.JourneyID] = &j
	return nil
}

// FindByID returns a copy of the journey for the given ID.
func (s *InMemoryJourneyStore) FindByID(_ context.Context, id uuid.UUID) (*models.JourneyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.journeys[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	j := *stored
	return &j, nil
}

// Update writes the journey back if its version still matches the stored row,
// then bumps the version. A stale version returns sentinel.ErrConflict.
func (s *InMemoryJourneyStore) Update(_ context.Context, journey *models.JourneyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.journeys[journey.JourneyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != journey.Version {
		return sentinel.ErrConflict
	}
	j := *journey
	j.Version++
	s.journeys[journey.JourneyID] = &j
	journey.Version = j.Version
	return nil
}

// DeleteExpired removes journeys past the expiry policy and returns how many
// rows were swept.
func (s *InMemoryJourneyStore) DeleteExpired(_ context.Context, policy models.ExpiryPolicy, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, journey := range s.journeys {
		if policy.Expired(journey, now) {
			delete(s.journeys, id)
			n++
		}
	}
	return n, nil
}
