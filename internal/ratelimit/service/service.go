package service

import (
	"context"
	"errors"
	"log/slog"

	"idverify/internal/ratelimit/config"
	"idverify/internal/ratelimit/metrics"
	"idverify/internal/ratelimit/models"
	"idverify/internal/ratelimit/ports"
	dErrors "idverify/pkg/domain-errors"
)

// CounterStore is re-exported so callers can depend on the service package
// without importing ports directly.
type CounterStore = ports.CounterStore

// Service enforces per-(subject, operation kind) abuse limits over a TTL
// window. Subjects are typically client IPs; each operation kind counts
// separately.
type Service struct {
	counters CounterStore
	config   *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counters CounterStore, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}

	svc := &Service{
		counters: counters,
		config:   config.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Check reports whether the subject is still under the limit for the given
// operation kind. It never mutates the counter.
func (s *Service) Check(ctx context.Context, kind models.OperationKind, subject string) (*models.CounterResult, error) {
	limit, ok := s.config.Get(kind)
	if !ok {
		// Default-deny: unknown kinds are never allowed.
		return nil, dErrors.Newf(dErrors.CodeInternal, "no limit configured for operation kind %q", kind)
	}

	key := models.NewCounterKey(kind, subject)
	count, err := s.counters.Count(ctx, key.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read rate limit counter")
	}

	result := &models.CounterResult{
		Count:    count,
		Limit:    limit.Max,
		Exceeded: count >= limit.Max,
	}

	if result.Exceeded {
		if s.metrics != nil {
			s.metrics.RecordExceeded(kind.String())
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "rate limit exceeded",
				"kind", kind,
				"subject", subject,
				"count", count,
				"limit", limit.Max,
			)
		}
	}

	return result, nil
}

// Record counts one operation against the subject's window. The counter's TTL
// is attached atomically on first creation by the store.
func (s *Service) Record(ctx context.Context, kind models.OperationKind, subject string) error {
	limit, ok := s.config.Get(kind)
	if !ok {
		return dErrors.Newf(dErrors.CodeInternal, "no limit configured for operation kind %q", kind)
	}

	key := models.NewCounterKey(kind, subject)
	if _, err := s.counters.Increment(ctx, key.String(), limit.Window); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to increment rate limit counter")
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(kind.String())
	}
	return nil
}
