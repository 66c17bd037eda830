package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idverify/internal/journey/models"
	"idverify/pkg/platform/sentinel"
)

type InMemoryJourneyStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryJourneyStore
}

func TestInMemoryJourneyStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryJourneyStoreSuite))
}

func (s *InMemoryJourneyStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryJourneyStore()
}

func (s *InMemoryJourneyStoreSuite) newJourney() *models.JourneyState {
	journey, err := models.New(models.RequirementEmailOnly, "/dest", true, time.Now())
	s.Require().NoError(err)
	return journey
}

func (s *InMemoryJourneyStoreSuite) TestCreateAndFind() {
	journey := s.newJourney()
	s.Require().NoError(s.store.Create(s.ctx, journey))

	found, err := s.store.FindByID(s.ctx, journey.JourneyID)
	s.Require().NoError(err)
	s.Equal(journey.JourneyID, found.JourneyID)
	s.Equal(journey.Version, found.Version)
}

func (s *InMemoryJourneyStoreSuite) TestCreateDuplicateConflicts() {
	journey := s.newJourney()
	s.Require().NoError(s.store.Create(s.ctx, journey))
	s.ErrorIs(s.store.Create(s.ctx, journey), sentinel.ErrConflict)
}

func (s *InMemoryJourneyStoreSuite) TestFindUnknownReturnsNotFound() {
	_, err := s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryJourneyStoreSuite) TestUpdateBumpsVersion() {
	journey := s.newJourney()
	s.Require().NoError(s.store.Create(s.ctx, journey))

	s.Require().NoError(journey.SetEmail("user@example.com", time.Now()))
	s.Require().NoError(s.store.Update(s.ctx, journey))
	s.Equal(1, journey.Version)

	found, err := s.store.FindByID(s.ctx, journey.JourneyID)
	s.Require().NoError(err)
	s.Equal("user@example.com", found.Email)
	s.Equal(1, found.Version)
}

func (s *InMemoryJourneyStoreSuite) TestConcurrentUpdateConflicts() {
	journey := s.newJourney()
	s.Require().NoError(s.store.Create(s.ctx, journey))

	first, err := s.store.FindByID(s.ctx, journey.JourneyID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(s.ctx, journey.JourneyID)
	s.Require().NoError(err)

	s.Require().NoError(first.SetEmail("first@example.com", time.Now()))
	s.Require().NoError(s.store.Update(s.ctx, first))

	s.Require().NoError(second.SetEmail("second@example.com", time.Now()))
	s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)

	found, err := s.store.FindByID(s.ctx, journey.JourneyID)
	s.Require().NoError(err)
	s.Equal("first@example.com", found.Email)
}

func (s *InMemoryJourneyStoreSuite) TestDeleteExpired() {
	policy := models.ExpiryPolicy{Basis: models.ExpiryBasisLastAccessed, Window: 24 * time.Hour}

	fresh := s.newJourney()
	s.Require().NoError(s.store.Create(s.ctx, fresh))

	stale := s.newJourney()
	stale.LastAccessedAt = time.Now().Add(-48 * time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, stale))

	n, err := s.store.DeleteExpired(s.ctx, policy, time.Now())
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindByID(s.ctx, stale.JourneyID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, fresh.JourneyID)
	s.NoError(err)
}
