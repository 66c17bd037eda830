package handoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idverify/internal/journey/models"
	"idverify/internal/resolve"
	dErrors "idverify/pkg/domain-errors"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner("test-signing-key", "idverify", "token-issuer", 5*time.Minute)
	require.NoError(t, err)
	return signer
}

func completedJourney(t *testing.T) *models.JourneyState {
	t.Helper()
	now := time.Now()
	journey, err := models.New(models.RequirementTRNResolution, "/dest", true, now)
	require.NoError(t, err)
	require.NoError(t, journey.SetEmail("user@example.com", now))
	require.NoError(t, journey.MarkEmailVerified(now))
	trn := "1234567"
	require.NoError(t, journey.CompleteTRNLookup(&trn, resolve.StatusFound, now))
	require.NoError(t, journey.MarkComplete(now))
	return journey
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner("", "idverify", "token-issuer", time.Minute)
	assert.Error(t, err)
}

func TestSignAndValidateRoundTrip(t *testing.T) {
	signer := newSigner(t)
	journey := completedJourney(t)

	token, err := signer.Sign(journey, time.Now())
	require.NoError(t, err)

	claims, err := signer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, journey.JourneyID.String(), claims.JourneyID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "1234567", claims.TRN)
	assert.Equal(t, string(resolve.StatusFound), claims.TRNLookupStatus)
	assert.Equal(t, "idverify", claims.Issuer)
}

func TestSignRejectsIncompleteJourney(t *testing.T) {
	signer := newSigner(t)
	journey, err := models.New(models.RequirementEmailOnly, "/dest", true, time.Now())
	require.NoError(t, err)

	_, err = signer.Sign(journey, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	signer := newSigner(t)
	journey := completedJourney(t)

	token, err := signer.Sign(journey, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = signer.Validate(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signer := newSigner(t)
	journey := completedJourney(t)

	token, err := signer.Sign(journey, time.Now())
	require.NoError(t, err)

	other, err := NewSigner("different-key", "idverify", "token-issuer", time.Minute)
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
