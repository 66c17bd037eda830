package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "idverify/pkg/domain-errors"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idverify_trn_lookups_total",
		Help: "Total number of registry lookups by resulting status",
	}, []string{"status"})
	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idverify_trn_lookup_duration_seconds",
		Help:    "Latency of external registry lookups",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

// ErrLookupCancelled reports that the registry call was abandoned before it
// answered. Distinct from a zero-candidate answer: the caller must treat it as
// "no answer" and leave the lookup unattempted.
var ErrLookupCancelled = errors.New("registry lookup cancelled")

// LookupInput carries the collected journey facts the engine resolves from.
// The journey state itself stays with the caller; the engine sees only facts.
type LookupInput struct {
	FirstName               string
	LastName                string
	PreviousFirstName       string
	PreviousLastName        string
	DateOfBirth             *time.Time
	NationalInsuranceNumber string
	Email                   string
	StatedTRN               *string
	AwardedQualification    bool
}

// Engine resolves a user's registry identifier from collected facts: it
// normalizes stated identifiers, queries the external registry, and applies
// the matching policy.
type Engine struct {
	client RegistryClient
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(client RegistryClient, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, errors.New("registry client is required")
	}
	e := &Engine{client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Lookup queries the registry with normalized facts and classifies the result.
// A cancelled external call returns ErrLookupCancelled with StatusNone; the
// caller must clear any stale prior resolution rather than keep it.
func (e *Engine) Lookup(ctx context.Context, in LookupInput) (*string, LookupStatus, error) {
	var statedTRN *string
	if in.StatedTRN != nil {
		// A value that normalizes to nothing is not a stated TRN.
		if normalized := NormalizeTRN(*in.StatedTRN); normalized != "" {
			statedTRN = &normalized
		}
	}

	query := Query{
		FirstName:               in.FirstName,
		LastName:                in.LastName,
		PreviousFirstName:       in.PreviousFirstName,
		PreviousLastName:        in.PreviousLastName,
		DateOfBirth:             in.DateOfBirth,
		NationalInsuranceNumber: NormalizeNINumber(in.NationalInsuranceNumber),
		Email:                   in.Email,
	}
	if statedTRN != nil {
		query.StatedTRN = *statedTRN
	}

	start := time.Now()
	candidates, err := e.client.FindCandidates(ctx, query)
	lookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lookupsTotal.WithLabelValues("cancelled").Inc()
			return nil, StatusNone, ErrLookupCancelled
		}
		lookupsTotal.WithLabelValues("error").Inc()
		return nil, StatusNone, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}

	trn, status := ResolveTRN(candidates, statedTRN, in.AwardedQualification)
	lookupsTotal.WithLabelValues(string(status)).Inc()

	if e.logger != nil {
		e.logger.InfoContext(ctx, "registry lookup completed",
			"candidates", len(candidates),
			"status", status,
		)
	}
	return trn, status, nil
}

// ResolveTRN is the pure matching policy over the candidate list and journey
// facts:
//
//   - exactly one candidate: Found with that candidate's TRN, regardless of
//     whether it matches a previously stated TRN or the user's self-reported
//     qualification answer — a single unambiguous registry hit always wins
//   - two or more candidates: Pending, TRN left unset
//   - zero candidates with a stated TRN or a claimed qualification award:
//     Pending (the record likely exists but was not matched automatically)
//   - zero candidates otherwise: None
func ResolveTRN(candidates []Candidate, statedTRN *string, awardedQualification bool) (*string, LookupStatus) {
	switch len(candidates) {
	case 1:
		trn := candidates[0].TRN
		return &trn, StatusFound
	case 0:
		if statedTRN != nil || awardedQualification {
			return nil, StatusPending
		}
		return nil, StatusNone
	default:
		return nil, StatusPending
	}
}
