package config

import (
	"time"

	"idverify/internal/ratelimit/models"
)

// Config holds per-operation-kind counter limits.
type Config struct {
	Limits map[models.OperationKind]models.Limit
}

// DefaultConfig returns the stock limits: five code generations per hour and
// ten failed verifications per hour per client IP.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[models.OperationKind]models.Limit{
			models.OpPinGeneration:   {Max: 5, Window: time.Hour},
			models.OpPinVerification: {Max: 10, Window: time.Hour},
		},
	}
}

// Get returns the limit for an operation kind.
func (c *Config) Get(kind models.OperationKind) (models.Limit, bool) {
	l, ok := c.Limits[kind]
	return l, ok
}
