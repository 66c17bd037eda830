package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"idverify/internal/journey/handoff"
	"idverify/internal/journey/models"
	pinmodels "idverify/internal/pin/models"
	"idverify/internal/resolve"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/sentinel"
	"idverify/pkg/requestcontext"
)

var (
	journeysStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idverify_journeys_started_total",
		Help: "Total number of verification journeys started by requirement set",
	}, []string{"requirements"})
	journeysCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idverify_journeys_completed_total",
		Help: "Total number of verification journeys completed by lookup status",
	}, []string{"trn_lookup_status"})
	journeysResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idverify_journeys_resumed_total",
		Help: "Total number of completed journeys resumed by a returning user",
	})
	journeysSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idverify_journeys_swept_total",
		Help: "Total number of expired journeys removed by the sweeper",
	})
)

// Store persists journey state. Update must fail with sentinel.ErrConflict
// when the stored version no longer matches the caller's copy.
type Store interface {
	Create(ctx context.Context, journey *models.JourneyState) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.JourneyState, error)
	Update(ctx context.Context, journey *models.JourneyState) error
	DeleteExpired(ctx context.Context, policy models.ExpiryPolicy, now time.Time) (int, error)
}

// PinService issues and checks one-time codes for a delivery channel.
type PinService interface {
	Generate(ctx context.Context, channel, subject string) (string, pinmodels.GenerateFailedReason, error)
	Verify(ctx context.Context, channel, submitted, subject string) (pinmodels.VerifyFailedReasons, error)
}

// LookupEngine resolves a registry identifier from collected facts.
type LookupEngine interface {
	Lookup(ctx context.Context, in resolve.LookupInput) (*string, resolve.LookupStatus, error)
}

// IdentityDirectory looks up a previously known account by email, used to seed
// journeys for returning users. Implementations return sentinel.ErrNotFound
// for unknown addresses.
type IdentityDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.ExistingIdentity, error)
}

// Service drives a journey through its steps: it loads state, applies one
// mutation per request, persists, and reports where the user goes next.
type Service struct {
	store     Store
	pins      PinService
	engine    LookupEngine
	directory IdentityDirectory
	signer    *handoff.Signer
	expiry    models.ExpiryPolicy
	logger    *slog.Logger

	now func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDirectory wires the lookup of previously known accounts. Without it
// every journey is treated as a first-time user's.
func WithDirectory(directory IdentityDirectory) Option {
	return func(s *Service) {
		s.directory = directory
	}
}

// WithHandoffSigner enables signed hand-off assertions for completed journeys.
func WithHandoffSigner(signer *handoff.Signer) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

func WithExpiryPolicy(policy models.ExpiryPolicy) Option {
	return func(s *Service) {
		s.expiry = policy
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, pins PinService, engine LookupEngine, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("journey store is required")
	}
	if pins == nil {
		return nil, errors.New("pin service is required")
	}
	if engine == nil {
		return nil, errors.New("lookup engine is required")
	}

	svc := &Service{
		store:  store,
		pins:   pins,
		engine: engine,
		expiry: models.ExpiryPolicy{
			Basis:  models.ExpiryBasisLastAccessed,
			Window: 24 * time.Hour,
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Begin starts a journey with the given requirement set and post sign-in
// destination.
func (s *Service) Begin(ctx context.Context, requirements models.RequirementSet, destination string) (*models.JourneyState, error) {
	journey, err := models.New(requirements, destination, true, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, journey); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create journey")
	}

	journeysStarted.WithLabelValues(string(requirements)).Inc()
	if s.logger != nil {
		s.logger.InfoContext(ctx, "journey started",
			"journey_id", journey.JourneyID,
			"requirements", requirements,
		)
	}
	return journey, nil
}

// Get loads a journey, enforcing expiry. An expired journey is unusable for
// both reads and writes; its facts cannot leak past the window.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	journey, err := s.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "journey not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load journey")
	}
	if s.expiry.Expired(journey, s.now()) {
		return nil, models.ErrJourneyExpired
	}
	return journey, nil
}

func (s *Service) save(ctx context.Context, journey *models.JourneyState) error {
	err := s.store.Update(ctx, journey)
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "journey was modified concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "journey not found")
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save journey")
	}
	return nil
}

// SubmitEmail records the claimed email and sends a one-time code to it. When
// a directory is wired and knows the address, the journey is seeded with the
// known account's facts after the email is confirmed, not here; only the
// first-time flag is settled at confirmation time.
func (s *Service) SubmitEmail(ctx context.Context, id uuid.UUID, email string) (*models.JourneyState, pinmodels.GenerateFailedReason, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return nil, pinmodels.GenerateFailedNone, err
	}
	if err := journey.SetEmail(email, s.now()); err != nil {
		return nil, pinmodels.GenerateFailedNone, err
	}

	_, reason, err := s.pins.Generate(ctx, email, requestcontext.ClientIP(ctx))
	if err != nil {
		return nil, pinmodels.GenerateFailedNone, err
	}
	if reason != pinmodels.GenerateFailedNone {
		return journey, reason, nil
	}

	if err := s.save(ctx, journey); err != nil {
		return nil, pinmodels.GenerateFailedNone, err
	}
	return journey, pinmodels.GenerateFailedNone, nil
}

// ResendEmailCode reissues the one-time code for the journey's claimed email.
func (s *Service) ResendEmailCode(ctx context.Context, id uuid.UUID) (pinmodels.GenerateFailedReason, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return pinmodels.GenerateFailedNone, err
	}
	if journey.Email == "" {
		return pinmodels.GenerateFailedNone, dErrors.New(dErrors.CodeInvalidInput, "no email to send a code to")
	}
	_, reason, err := s.pins.Generate(ctx, journey.Email, requestcontext.ClientIP(ctx))
	return reason, err
}

// VerifyEmail checks the submitted one-time code. On success the email is
// marked verified and, when a directory is wired, the journey is seeded from
// any previously known account for that address. A recently expired code
// triggers a silent reissue so the caller can prompt for the fresh one.
func (s *Service) VerifyEmail(ctx context.Context, id uuid.UUID, code string) (*models.JourneyState, pinmodels.VerifyFailedReasons, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return nil, pinmodels.VerifyFailedNone, err
	}
	if journey.Email == "" {
		return nil, pinmodels.VerifyFailedNone, dErrors.New(dErrors.CodeInvalidInput, "no email to verify")
	}

	subject := requestcontext.ClientIP(ctx)
	reasons, err := s.pins.Verify(ctx, journey.Email, code, subject)
	if err != nil {
		return nil, pinmodels.VerifyFailedNone, err
	}
	if !reasons.OK() {
		if reasons.Has(pinmodels.VerifyFailedExpiredRecently) {
			if _, _, genErr := s.pins.Generate(ctx, journey.Email, subject); genErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to reissue code after recent expiry",
					"journey_id", journey.JourneyID,
					"error", genErr,
				)
			}
		}
		return journey, reasons, nil
	}

	if err := journey.MarkEmailVerified(s.now()); err != nil {
		return nil, pinmodels.VerifyFailedNone, err
	}
	if err := s.seedFromDirectory(ctx, journey); err != nil {
		return nil, pinmodels.VerifyFailedNone, err
	}

	if err := s.save(ctx, journey); err != nil {
		return nil, pinmodels.VerifyFailedNone, err
	}
	return journey, pinmodels.VerifyFailedNone, nil
}

func (s *Service) seedFromDirectory(ctx context.Context, journey *models.JourneyState) error {
	if s.directory == nil {
		return nil
	}
	identity, err := s.directory.FindByEmail(ctx, journey.Email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up existing identity")
	}

	journey.FirstTimeUser = false
	if err := journey.Populate(*identity, s.now()); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "journey seeded from existing identity",
			"journey_id", journey.JourneyID,
			"user_id", identity.UserID,
		)
	}
	return nil
}

// SubmitOfficialName records the user's official name.
func (s *Service) SubmitOfficialName(ctx context.Context, id uuid.UUID, first, last string, hasPrevious bool, prevFirst, prevLast string) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetOfficialName(first, last, hasPrevious, prevFirst, prevLast, now)
	})
}

// SubmitDateOfBirth records the user's date of birth.
func (s *Service) SubmitDateOfBirth(ctx context.Context, id uuid.UUID, dob time.Time) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetDateOfBirth(dob, now)
	})
}

// SubmitMobileNumber records the optional phone number.
func (s *Service) SubmitMobileNumber(ctx context.Context, id uuid.UUID, number string) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetMobileNumber(number, now)
	})
}

// SubmitStatedTRN records the registry identifier the user asserts is theirs.
func (s *Service) SubmitStatedTRN(ctx context.Context, id uuid.UUID, value string) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetStatedTRN(value, now)
	})
}

// SubmitNationalInsuranceNumber records the user's NI number.
func (s *Service) SubmitNationalInsuranceNumber(ctx context.Context, id uuid.UUID, value string) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetNationalInsuranceNumber(value, now)
	})
}

// SubmitAwardedQualification records the user's self-reported answer.
func (s *Service) SubmitAwardedQualification(ctx context.Context, id uuid.UUID, awarded bool) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.SetAwardedQualification(awarded, now)
	})
}

// AcknowledgeCheckAnswers records that the user has seen the check-answers
// page after an ambiguous lookup.
func (s *Service) AcknowledgeCheckAnswers(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	return s.mutate(ctx, id, func(j *models.JourneyState, now time.Time) error {
		return j.AcknowledgeCheckAnswers(now)
	})
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, apply func(*models.JourneyState, time.Time) error) (*models.JourneyState, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(journey, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, journey); err != nil {
		return nil, err
	}
	return journey, nil
}

// RunTRNLookup queries the registry with the journey's collected facts and
// records the outcome. A cancelled registry call clears any stale resolution
// without marking the lookup attempted, so the journey never claims an answer
// it did not get.
func (s *Service) RunTRNLookup(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !journey.Requirements.RequiresTRNLookup() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "journey does not require a registry lookup")
	}

	awarded := journey.AwardedQualification != nil && *journey.AwardedQualification
	trn, status, err := s.engine.Lookup(ctx, resolve.LookupInput{
		FirstName:               journey.FirstName,
		LastName:                journey.LastName,
		PreviousFirstName:       journey.PreviousFirstName,
		PreviousLastName:        journey.PreviousLastName,
		DateOfBirth:             journey.DateOfBirth,
		NationalInsuranceNumber: journey.NationalInsuranceNumber,
		Email:                   journey.Email,
		StatedTRN:               journey.StatedTRN,
		AwardedQualification:    awarded,
	})
	if errors.Is(err, resolve.ErrLookupCancelled) {
		if clearErr := journey.ClearTRNResolution(s.now()); clearErr != nil {
			return nil, clearErr
		}
		if saveErr := s.save(ctx, journey); saveErr != nil {
			return nil, saveErr
		}
		return journey, err
	}
	if err != nil {
		return nil, err
	}

	if err := journey.CompleteTRNLookup(trn, status, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, journey); err != nil {
		return nil, err
	}
	return journey, nil
}

// NextHop reports where the journey goes next, closing it as complete first
// when every requirement is satisfied. Calling it repeatedly without new facts
// always yields the same destination.
func (s *Service) NextHop(ctx context.Context, id uuid.UUID) (string, *models.JourneyState, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}

	if !journey.IsComplete() && journey.RequirementsSatisfied() {
		if err := journey.MarkComplete(s.now()); err != nil {
			return "", nil, err
		}
		if err := s.save(ctx, journey); err != nil {
			return "", nil, err
		}
		journeysCompleted.WithLabelValues(string(journey.TRNLookupStatus)).Inc()
		if s.logger != nil {
			s.logger.InfoContext(ctx, "journey completed",
				"journey_id", journey.JourneyID,
				"trn_lookup_status", journey.TRNLookupStatus,
				"first_time_user", journey.FirstTimeUser,
			)
		}
	}

	return journey.NextHop(), journey, nil
}

// Resume re-validates a completed journey for a returning user and reports
// the destination to continue at. The journey's facts are never mutated.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (string, error) {
	journey, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if err := journey.ResumeCompleted(); err != nil {
		return "", err
	}
	journeysResumed.Inc()
	if s.logger != nil {
		s.logger.InfoContext(ctx, "completed journey resumed",
			"journey_id", journey.JourneyID,
		)
	}
	return journey.PostSignInDestination, nil
}

// Handoff signs the assertion that carries the completed journey's verified
// facts to the token-issuance layer.
func (s *Service) Handoff(ctx context.Context, id uuid.UUID) (string, error) {
	if s.signer == nil {
		return "", dErrors.New(dErrors.CodeInternal, "hand-off signing is not configured")
	}
	journey, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	return s.signer.Sign(journey, s.now())
}

// Sweep removes expired journeys. Intended to run periodically from a
// background worker; stores with native TTL report zero.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.expiry, s.now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep expired journeys")
	}
	if n > 0 {
		journeysSwept.Add(float64(n))
		if s.logger != nil {
			s.logger.InfoContext(ctx, "expired journeys swept", "count", n)
		}
	}
	return n, nil
}
