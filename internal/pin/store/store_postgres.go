package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"idverify/internal/pin/models"
	"idverify/pkg/platform/sentinel"
)

// PostgresCodeStore persists one-time code rows in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE one_time_codes (
//	    id          UUID PRIMARY KEY,
//	    channel     TEXT NOT NULL,
//	    code        TEXT NOT NULL,
//	    expires_at  TIMESTAMPTZ NOT NULL,
//	    active      BOOLEAN NOT NULL,
//	    verified_at TIMESTAMPTZ,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX one_time_codes_channel_idx ON one_time_codes (channel, created_at DESC);
type PostgresCodeStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCodeStore constructs a PostgreSQL-backed code store.
func NewPostgresCodeStore(pool *pgxpool.Pool) *PostgresCodeStore {
	return &PostgresCodeStore{pool: pool}
}

func (s *PostgresCodeStore) Insert(ctx context.Context, code *models.OneTimeCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO one_time_codes (id, channel, code, expires_at, active, verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		code.ID, code.Channel, code.Code, code.ExpiresAt, code.Active, code.VerifiedAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert one-time code: %w", err)
	}
	return nil
}

func (s *PostgresCodeStore) FindByChannelAndCode(ctx context.Context, channel, code string) (*models.OneTimeCode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, channel, code, expires_at, active, verified_at, created_at
		FROM one_time_codes
		WHERE channel = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		channel, code,
	)

	var c models.OneTimeCode
	err := row.Scan(&c.ID, &c.Channel, &c.Code, &c.ExpiresAt, &c.Active, &c.VerifiedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one-time code: %w", err)
	}
	return &c, nil
}

func (s *PostgresCodeStore) ActiveCodes(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code FROM one_time_codes WHERE channel = $1 AND active`,
		channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list active codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan active code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *PostgresCodeStore) DeactivateAll(ctx context.Context, channel string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE one_time_codes SET active = FALSE WHERE channel = $1 AND active`,
		channel,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresCodeStore) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE one_time_codes SET verified_at = $2, active = FALSE
		WHERE id = $1 AND verified_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark code verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
