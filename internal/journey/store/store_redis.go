package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"idverify/internal/journey/models"
	"idverify/pkg/platform/sentinel"
)

const journeyKeyPrefix = "journey:"

// RedisJourneyStore persists journey state as a JSON value per journey key,
// with the expiry window as the key TTL. Recommended for multi-instance
// deployments. Update serializes racing writers with an optimistic WATCH
// transaction over the journey key.
type RedisJourneyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJourneyStore constructs a Redis-backed journey store. ttl should be
// at least the journey expiry window; Redis then garbage-collects expired
// journeys without a sweeper.
func NewRedisJourneyStore(client *redis.Client, ttl time.Duration) *RedisJourneyStore {
	return &RedisJourneyStore{client: client, ttl: ttl}
}

func journeyKey(id uuid.UUID) string {
	return journeyKeyPrefix + id.String()
}

func (s *RedisJourneyStore) Create(ctx context.Context, journey *models.JourneyState) error {
	payload, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("encode journey: %w", err)
	}
	ok, err := s.client.SetNX(ctx, journeyKey(journey.JourneyID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create journey: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisJourneyStore) FindByID(ctx context.Context, id uuid.UUID) (*models.JourneyState, error) {
	payload, err := s.client.Get(ctx, journeyKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find journey: %w", err)
	}
	var journey models.JourneyState
	if err := json.Unmarshal(payload, &journey); err != nil {
		return nil, fmt.Errorf("decode journey: %w", err)
	}
	return &journey, nil
}

func (s *RedisJourneyStore) Update(ctx context.Context, journey *models.JourneyState) error {
	key := journeyKey(journey.JourneyID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored models.JourneyState
		if err := json.Unmarshal(payload, &stored); err != nil {
			return fmt.Errorf("decode journey: %w", err)
		}
		if stored.Version != journey.Version {
			return sentinel.ErrConflict
		}

		next := *journey
		next.Version++
		encoded, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode journey: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err == nil {
			journey.Version = next.Version
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

// DeleteExpired is a no-op: the key TTL already sweeps expired journeys.
func (s *RedisJourneyStore) DeleteExpired(_ context.Context, _ models.ExpiryPolicy, _ time.Time) (int, error) {
	return 0, nil
}
