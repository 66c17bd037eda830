package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idverify/internal/resolve"
	dErrors "idverify/pkg/domain-errors"
)

func newTestJourney(t *testing.T, requirements RequirementSet) *JourneyState {
	t.Helper()
	journey, err := New(requirements, "/oauth/authorize/resume", true, time.Now())
	require.NoError(t, err)
	return journey
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New("unknown_variant", "/dest", true, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = New(RequirementEmailOnly, "", true, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNextHopPrecedence(t *testing.T) {
	now := time.Now()
	dob := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		build    func(t *testing.T) *JourneyState
		wantStep string
	}{
		{
			name: "no email yet",
			build: func(t *testing.T) *JourneyState {
				return newTestJourney(t, RequirementTRNResolution)
			},
			wantStep: StepEmail,
		},
		{
			name: "email set but unverified",
			build: func(t *testing.T) *JourneyState {
				j := newTestJourney(t, RequirementTRNResolution)
				require.NoError(t, j.SetEmail("user@example.com", now))
				return j
			},
			wantStep: StepEmailConfirmation,
		},
		{
			name: "verified email, name missing",
			build: func(t *testing.T) *JourneyState {
				j := newTestJourney(t, RequirementTRNResolution)
				require.NoError(t, j.SetEmail("user@example.com", now))
				require.NoError(t, j.MarkEmailVerified(now))
				return j
			},
			wantStep: StepOfficialName,
		},
		{
			name: "name set, date of birth missing",
			build: func(t *testing.T) *JourneyState {
				j := newTestJourney(t, RequirementTRNResolution)
				require.NoError(t, j.SetEmail("user@example.com", now))
				require.NoError(t, j.MarkEmailVerified(now))
				require.NoError(t, j.SetOfficialName("Jo", "Smith", false, "", "", now))
				return j
			},
			wantStep: StepDateOfBirth,
		},
		{
			name: "facts collected, lookup not yet run",
			build: func(t *testing.T) *JourneyState {
				j := newTestJourney(t, RequirementTRNResolution)
				require.NoError(t, j.SetEmail("user@example.com", now))
				require.NoError(t, j.MarkEmailVerified(now))
				require.NoError(t, j.SetOfficialName("Jo", "Smith", false, "", "", now))
				require.NoError(t, j.SetDateOfBirth(dob, now))
				return j
			},
			wantStep: StepTRNLookup,
		},
		{
			name: "pending lookup awaits check answers",
			build: func(t *testing.T) *JourneyState {
				j := newTestJourney(t, RequirementTRNResolution)
				require.NoError(t, j.SetEmail("user@example.com", now))
				require.NoError(t, j.MarkEmailVerified(now))
				require.NoError(t, j.SetOfficialName("Jo", "Smith", false, "", "", now))
				require.NoError(t, j.SetDateOfBirth(dob, now))
				require.NoError(t, j.CompleteTRNLookup(nil, resolve.StatusPending, now))
				return j
			},
			wantStep: StepCheckAnswers,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := tc.build(t)
			hop := j.NextHop()
			assert.True(t, strings.HasPrefix(hop, tc.wantStep+"?journey_id="), "got %q", hop)
			assert.Contains(t, hop, j.JourneyID.String())
		})
	}
}

func TestNextHopDestinationWhenSatisfied(t *testing.T) {
	now := time.Now()

	j := newTestJourney(t, RequirementEmailOnly)
	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	assert.Equal(t, "/oauth/authorize/resume", j.NextHop())

	trn := "1234567"
	j = newTestJourney(t, RequirementTRNResolution)
	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.CompleteTRNLookup(&trn, resolve.StatusFound, now))
	assert.Equal(t, "/oauth/authorize/resume", j.NextHop())
}

func TestNextHopIsIdempotent(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)
	require.NoError(t, j.SetEmail("user@example.com", now))

	first := j.NextHop()
	for range 5 {
		assert.Equal(t, first, j.NextHop())
	}
}

func TestZeroCandidateNoClaimsSkipsCheckAnswers(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)
	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.SetOfficialName("Jo", "Smith", false, "", "", now))
	require.NoError(t, j.SetDateOfBirth(time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC), now))
	require.NoError(t, j.CompleteTRNLookup(nil, resolve.StatusNone, now))

	assert.True(t, j.RequirementsSatisfied())
	assert.Equal(t, "/oauth/authorize/resume", j.NextHop())
}

func TestMarkEmailVerifiedRequiresEmail(t *testing.T) {
	j := newTestJourney(t, RequirementEmailOnly)
	err := j.MarkEmailVerified(time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestChangingEmailResetsVerification(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementEmailOnly)
	require.NoError(t, j.SetEmail("first@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.True(t, j.EmailVerified)

	require.NoError(t, j.SetEmail("second@example.com", now))
	assert.False(t, j.EmailVerified)

	// Re-submitting the same address keeps the confirmation.
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.SetEmail("second@example.com", now))
	assert.True(t, j.EmailVerified)
}

func TestCompletedJourneyRejectsMutation(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementEmailOnly)
	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.MarkComplete(now))

	assert.ErrorIs(t, j.SetEmail("other@example.com", now), ErrJourneyClosed)
	assert.ErrorIs(t, j.SetOfficialName("A", "B", false, "", "", now), ErrJourneyClosed)
	assert.ErrorIs(t, j.SetDateOfBirth(now.AddDate(-30, 0, 0), now), ErrJourneyClosed)
	assert.ErrorIs(t, j.CompleteTRNLookup(nil, resolve.StatusNone, now), ErrJourneyClosed)
}

func TestMarkCompleteRequiresSatisfiedRequirements(t *testing.T) {
	now := time.Now()

	j := newTestJourney(t, RequirementEmailOnly)
	err := j.MarkComplete(now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	// Pending lookup without the acknowledgement is not satisfied.
	j = newTestJourney(t, RequirementStaffAccount)
	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.CompleteTRNLookup(nil, resolve.StatusPending, now))
	assert.False(t, j.RequirementsSatisfied())

	require.NoError(t, j.AcknowledgeCheckAnswers(now))
	assert.True(t, j.RequirementsSatisfied())
	assert.NoError(t, j.MarkComplete(now))
}

func TestCompleteTRNLookupInvariant(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)

	trn := "7654321"
	assert.Error(t, j.CompleteTRNLookup(nil, resolve.StatusFound, now))
	assert.Error(t, j.CompleteTRNLookup(&trn, resolve.StatusPending, now))
	assert.Error(t, j.CompleteTRNLookup(&trn, resolve.StatusNone, now))
	empty := ""
	assert.Error(t, j.CompleteTRNLookup(&empty, resolve.StatusFound, now))

	require.NoError(t, j.CompleteTRNLookup(&trn, resolve.StatusFound, now))
	require.NotNil(t, j.ResolvedTRN)
	assert.Equal(t, trn, *j.ResolvedTRN)

	// A repeat lookup replaces the prior outcome wholesale.
	require.NoError(t, j.CompleteTRNLookup(nil, resolve.StatusPending, now))
	assert.Nil(t, j.ResolvedTRN)
	assert.Equal(t, resolve.StatusPending, j.TRNLookupStatus)
}

func TestClearTRNResolution(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)
	trn := "1234567"
	require.NoError(t, j.CompleteTRNLookup(&trn, resolve.StatusFound, now))

	require.NoError(t, j.ClearTRNResolution(now))
	assert.Nil(t, j.ResolvedTRN)
	assert.Equal(t, resolve.StatusNone, j.TRNLookupStatus)
	assert.False(t, j.HasCompletedTRNLookup)
}

func TestSetDateOfBirthRejectsFuture(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)
	err := j.SetDateOfBirth(now.Add(24*time.Hour), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSetStatedTRNEmptyClears(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementTRNResolution)
	require.NoError(t, j.SetStatedTRN("1234567", now))
	require.NotNil(t, j.StatedTRN)

	require.NoError(t, j.SetStatedTRN("", now))
	assert.Nil(t, j.StatedTRN)
}

func TestPopulateFromExistingIdentity(t *testing.T) {
	now := time.Now()
	dob := time.Date(1985, 7, 2, 0, 0, 0, 0, time.UTC)
	trn := "9876543"
	userID := uuid.New()

	j := newTestJourney(t, RequirementTRNResolution)
	require.NoError(t, j.Populate(ExistingIdentity{
		UserID:      userID,
		Email:       "known@example.com",
		FirstName:   "Jo",
		LastName:    "Smith",
		DateOfBirth: &dob,
		TRN:         &trn,
	}, now))

	assert.True(t, j.EmailVerified)
	assert.Equal(t, resolve.StatusFound, j.TRNLookupStatus)
	assert.True(t, j.HasCompletedTRNLookup)
	require.NotNil(t, j.ResolvedTRN)
	assert.Equal(t, trn, *j.ResolvedTRN)
	require.NotNil(t, j.ResolvedUserID)
	assert.Equal(t, userID, *j.ResolvedUserID)
	assert.True(t, j.RequirementsSatisfied())
}

func TestResumeCompleted(t *testing.T) {
	now := time.Now()
	j := newTestJourney(t, RequirementEmailOnly)
	assert.Error(t, j.ResumeCompleted())

	require.NoError(t, j.SetEmail("user@example.com", now))
	require.NoError(t, j.MarkEmailVerified(now))
	require.NoError(t, j.MarkComplete(now))
	assert.NoError(t, j.ResumeCompleted())
}

func TestExpiryPolicy(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	j := &JourneyState{CreatedAt: created, LastAccessedAt: created.Add(6 * time.Hour)}

	byAccess := ExpiryPolicy{Basis: ExpiryBasisLastAccessed, Window: 24 * time.Hour}
	byCreated := ExpiryPolicy{Basis: ExpiryBasisCreated, Window: 24 * time.Hour}

	at := created.Add(25 * time.Hour)
	assert.False(t, byAccess.Expired(j, at))
	assert.True(t, byCreated.Expired(j, at))

	at = created.Add(31 * time.Hour)
	assert.True(t, byAccess.Expired(j, at))
}
