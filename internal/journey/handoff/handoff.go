// Package handoff signs the short-lived assertion handed to the downstream
// token-issuance layer once a journey completes. The assertion carries the
// verified facts; the OAuth/OIDC dance itself lives outside this service.
package handoff

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	journeymodels "idverify/internal/journey/models"
	dErrors "idverify/pkg/domain-errors"
)

// Claims carries the verified journey facts for token issuance.
type Claims struct {
	JourneyID       string `json:"journey_id"`
	Email           string `json:"email"`
	EmailVerified   bool   `json:"email_verified"`
	FirstName       string `json:"given_name,omitempty"`
	LastName        string `json:"family_name,omitempty"`
	DateOfBirth     string `json:"birthdate,omitempty"`
	TRN             string `json:"trn,omitempty"`
	TRNLookupStatus string `json:"trn_lookup_status"`
	FirstTimeUser   bool   `json:"first_time_user"`
	jwt.RegisteredClaims
}

// Signer issues and validates hand-off assertions.
type Signer struct {
	signingKey []byte
	issuer     string
	audience   string
	lifetime   time.Duration
}

func NewSigner(signingKey, issuer, audience string, lifetime time.Duration) (*Signer, error) {
	if signingKey == "" {
		return nil, errors.New("signing key is required")
	}
	return &Signer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		lifetime:   lifetime,
	}, nil
}

// Sign produces an assertion for a completed journey. The journey must have
// been closed as complete; incomplete journeys never reach token issuance.
func (s *Signer) Sign(journey *journeymodels.JourneyState, now time.Time) (string, error) {
	if !journey.IsComplete() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "cannot sign hand-off for an incomplete journey")
	}

	claims := Claims{
		JourneyID:       journey.JourneyID.String(),
		Email:           journey.Email,
		EmailVerified:   journey.EmailVerified,
		FirstName:       journey.FirstName,
		LastName:        journey.LastName,
		TRNLookupStatus: string(journey.TRNLookupStatus),
		FirstTimeUser:   journey.FirstTimeUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}
	if journey.DateOfBirth != nil {
		claims.DateOfBirth = journey.DateOfBirth.Format("2006-01-02")
	}
	if journey.ResolvedTRN != nil {
		claims.TRN = *journey.ResolvedTRN
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// Validate parses and verifies an assertion.
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "hand-off assertion has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid hand-off assertion")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid hand-off assertion claims")
	}
	return claims, nil
}
