package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"idverify/internal/pin/models"
	"idverify/pkg/platform/sentinel"
)

// InMemoryCodeStore keeps one-time code rows in a process-local slice per
// channel. Rows are append-only: deactivation and verification mutate flags
// in place but rows are never removed, matching the audit retention rule.
type InMemoryCodeStore struct {
	mu    sync.RWMutex
	codes map[string][]*models.OneTimeCode
}

// NewInMemoryCodeStore creates a new in-memory code store.
func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{codes: make(map[string][]*models.OneTimeCode)}
}

// Insert appends a new code row for its channel.
func (s *InMemoryCodeStore) Insert(_ context.Context, code *models.OneTimeCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *code
	s.codes[code.Channel] = append(s.codes[code.Channel], &c)
	return nil
}

// FindByChannelAndCode returns the most recent row matching channel and code.
func (s *InMemoryCodeStore) FindByChannelAndCode(_ context.Context, channel, code string) (*models.OneTimeCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.codes[channel]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Code == code {
			c := *rows[i]
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ActiveCodes returns the code strings currently active for a channel.
func (s *InMemoryCodeStore) ActiveCodes(_ context.Context, channel string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []string
	for _, row := range s.codes[channel] {
		if row.Active {
			active = append(active, row.Code)
		}
	}
	return active, nil
}

// DeactivateAll flips every active row for the channel to inactive and
// returns how many rows changed.
func (s *InMemoryCodeStore) DeactivateAll(_ context.Context, channel string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.codes[channel] {
		if row.Active {
			row.Active = false
			n++
		}
	}
	return n, nil
}

// MarkVerified consumes a code: sets verifiedAt and deactivates the row.
func (s *InMemoryCodeStore) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rows := range s.codes {
		for _, row := range rows {
			if row.ID == id {
				if row.VerifiedAt != nil {
					return sentinel.ErrAlreadyUsed
				}
				t := at
				row.VerifiedAt = &t
				row.Active = false
				return nil
			}
		}
	}
	return sentinel.ErrNotFound
}
