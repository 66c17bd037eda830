package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"idverify/internal/notify"
	"idverify/internal/pin/models"
	rlmodels "idverify/internal/ratelimit/models"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/platform/sentinel"
)

var (
	pinsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idverify_pins_generated_total",
		Help: "Total number of one-time codes generated",
	})
	pinVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idverify_pin_verifications_total",
		Help: "Total number of one-time code verification attempts by outcome",
	}, []string{"outcome"})
)

const (
	// recentExpiryGrace is the window after expiry during which verification
	// reports ExpiredRecently, prompting a silent reissue instead of a bare
	// failure.
	recentExpiryGrace = 2 * time.Hour

	// maxCollisionRetries bounds regeneration when a fresh code collides with
	// a currently active one. The active set per channel is tiny, so hitting
	// this bound means the entropy source is broken.
	maxCollisionRetries = 10
)

// CodeStore persists one-time code rows.
type CodeStore interface {
	Insert(ctx context.Context, code *models.OneTimeCode) error
	FindByChannelAndCode(ctx context.Context, channel, code string) (*models.OneTimeCode, error)
	ActiveCodes(ctx context.Context, channel string) ([]string, error)
	DeactivateAll(ctx context.Context, channel string) (int, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RateLimiter guards generation and verification per subject key.
type RateLimiter interface {
	Check(ctx context.Context, kind rlmodels.OperationKind, subject string) (*rlmodels.CounterResult, error)
	Record(ctx context.Context, kind rlmodels.OperationKind, subject string) error
}

// Service issues and checks single-use numeric codes per channel.
type Service struct {
	codes    CodeStore
	limiter  RateLimiter
	sender   notify.Sender
	lifetime time.Duration
	logger   *slog.Logger

	// rand and now are swappable for tests.
	rand io.Reader
	now  func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithLifetime(lifetime time.Duration) Option {
	return func(s *Service) {
		s.lifetime = lifetime
	}
}

func WithRandReader(r io.Reader) Option {
	return func(s *Service) {
		s.rand = r
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(codes CodeStore, limiter RateLimiter, sender notify.Sender, opts ...Option) (*Service, error) {
	if codes == nil {
		return nil, errors.New("code store is required")
	}
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}

	svc := &Service{
		codes:    codes,
		limiter:  limiter,
		sender:   sender,
		lifetime: 15 * time.Minute,
		rand:     rand.Reader,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Generate issues a fresh single-use code for the channel and hands it to the
// delivery sender. All previously active codes for the channel are deactivated
// first, so at most one code is live per channel at any instant. The subject
// key (client IP) is counted toward the generation limit regardless of whether
// delivery succeeds.
func (s *Service) Generate(ctx context.Context, channel, subject string) (string, models.GenerateFailedReason, error) {
	if channel == "" {
		return "", models.GenerateFailedNone, dErrors.New(dErrors.CodeInvalidInput, "channel is required")
	}

	limit, err := s.limiter.Check(ctx, rlmodels.OpPinGeneration, subject)
	if err != nil {
		return "", models.GenerateFailedNone, err
	}
	if limit.Exceeded {
		return "", models.GenerateFailedRateLimitExceeded, nil
	}

	active, err := s.codes.ActiveCodes(ctx, channel)
	if err != nil {
		return "", models.GenerateFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active codes")
	}

	code, err := s.generateDistinct(active)
	if err != nil {
		return "", models.GenerateFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}

	if _, err := s.codes.DeactivateAll(ctx, channel); err != nil {
		return "", models.GenerateFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate prior codes")
	}

	now := s.now()
	row := &models.OneTimeCode{
		ID:        uuid.New(),
		Channel:   channel,
		Code:      code,
		ExpiresAt: now.Add(s.lifetime),
		Active:    true,
		CreatedAt: now,
	}
	if err := s.codes.Insert(ctx, row); err != nil {
		return "", models.GenerateFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist code")
	}

	if err := s.limiter.Record(ctx, rlmodels.OpPinGeneration, subject); err != nil {
		return "", models.GenerateFailedNone, err
	}
	pinsGenerated.Inc()

	// Delivery failure does not invalidate the persisted code; the user can
	// still receive it via a later retry or a support channel.
	if err := s.sender.Deliver(ctx, channel, code); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "one-time code delivery failed",
			"channel", channel,
			"error", err,
		)
	}

	return code, models.GenerateFailedNone, nil
}

// Verify checks a submitted code for the channel. On success the code is
// consumed; on any failure other than a tripped rate limit, the verification
// failure counter for the subject is incremented.
func (s *Service) Verify(ctx context.Context, channel, submitted, subject string) (models.VerifyFailedReasons, error) {
	if channel == "" {
		return models.VerifyFailedNone, dErrors.New(dErrors.CodeInvalidInput, "channel is required")
	}
	if submitted == "" {
		return models.VerifyFailedNone, dErrors.New(dErrors.CodeInvalidInput, "code is required")
	}

	limit, err := s.limiter.Check(ctx, rlmodels.OpPinVerification, subject)
	if err != nil {
		return models.VerifyFailedNone, err
	}
	if limit.Exceeded {
		pinVerifications.WithLabelValues("rate_limited").Inc()
		return models.VerifyFailedRateLimitExceeded, nil
	}

	now := s.now()
	reasons := models.VerifyFailedNone

	row, err := s.codes.FindByChannelAndCode(ctx, channel, submitted)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		reasons |= models.VerifyFailedUnknown
	case err != nil:
		return models.VerifyFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up code")
	default:
		if !row.Active {
			reasons |= models.VerifyFailedNotActive
		}
		if now.After(row.ExpiresAt) {
			reasons |= models.VerifyFailedExpired
			if now.Sub(row.ExpiresAt) < recentExpiryGrace {
				reasons |= models.VerifyFailedExpiredRecently
			}
		}
	}

	if reasons.OK() {
		if err := s.codes.MarkVerified(ctx, row.ID, now); err != nil {
			return models.VerifyFailedNone, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume code")
		}
		pinVerifications.WithLabelValues("success").Inc()
		return models.VerifyFailedNone, nil
	}

	if err := s.limiter.Record(ctx, rlmodels.OpPinVerification, subject); err != nil {
		return reasons, err
	}
	pinVerifications.WithLabelValues(reasons.String()).Inc()

	if s.logger != nil {
		s.logger.InfoContext(ctx, "one-time code verification failed",
			"channel", channel,
			"reasons", reasons.String(),
		)
	}
	return reasons, nil
}

// generateDistinct draws a fixed-length numeric code distinct from every
// currently active code for the channel. Leading zeros are preserved; the
// code is a string end to end, never an integer.
func (s *Service) generateDistinct(active []string) (string, error) {
	for range maxCollisionRetries {
		code, err := s.randomCode()
		if err != nil {
			return "", err
		}
		if !slices.Contains(active, code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a distinct code after %d attempts", maxCollisionRetries)
}

func (s *Service) randomCode() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.rand, buf[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000
	return fmt.Sprintf("%06d", n), nil
}
