package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"idverify/internal/journey/models"
	"idverify/pkg/platform/sentinel"
)

// PostgresJourneyStore persists journey state as a JSONB document per row,
// with the version column enforcing optimistic concurrency.
//
// Expected schema:
//
//	CREATE TABLE journeys (
//	    id               UUID PRIMARY KEY,
//	    state            JSONB NOT NULL,
//	    version          INTEGER NOT NULL,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    last_accessed_at TIMESTAMPTZ NOT NULL
//	);
type PostgresJourneyStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJourneyStore constructs a PostgreSQL-backed journey store.
func NewPostgresJourneyStore(pool *pgxpool.Pool) *PostgresJourneyStore {
	return &PostgresJourneyStore{pool: pool}
}

func (s *PostgresJourneyStore) Create(ctx context.Context, journey *models.JourneyState) error {
	state, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("encode journey: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO journeys (id, state, version, created_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		journey.JourneyID, state, journey.Version, journey.CreatedAt, journey.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journey: %w", err)
	}
	return nil
}

func (s *PostgresJourneyStore) FindByID(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM journeys WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find journey: %w", err)
	}
	var journey models.JourneyState
	if err := json.Unmarshal(state, &journey); err != nil {
		return nil, fmt.Errorf("decode journey: %w", err)
	}
	return &journey, nil
}

func (s *PostgresJourneyStore) Update(ctx context.Context, journey *models.JourneyState) error {
	next := *journey
	next.Version++
	state, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode journey: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE journeys
		SET state = $2, version = $3, last_accessed_at = $4
		WHERE id = $1 AND version = $5`,
		journey.JourneyID, state, next.Version, next.LastAccessedAt, journey.Version,
	)
	if err != nil {
		return fmt.Errorf("update journey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another writer got there first.
		if _, findErr := s.FindByID(ctx, journey.JourneyID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	journey.Version = next.Version
	return nil
}

func (s *PostgresJourneyStore) DeleteExpired(ctx context.Context, policy models.ExpiryPolicy, now time.Time) (int, error) {
	column := "last_accessed_at"
	if policy.Basis == models.ExpiryBasisCreated {
		column = "created_at"
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM journeys WHERE %s < $1`, column),
		now.Add(-policy.Window),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired journeys: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
