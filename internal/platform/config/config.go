package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ExpiryBasis selects which timestamp anchors journey expiry.
type ExpiryBasis string

const (
	ExpiryBasisLastAccessed ExpiryBasis = "last_accessed"
	ExpiryBasisCreated      ExpiryBasis = "created"
)

// Config captures process-level configuration sourced from the environment.
type Config struct {
	Addr string

	Redis    RedisConfig
	Database DatabaseConfig

	// Journey lifecycle.
	JourneyExpiryWindow time.Duration
	JourneyExpiryBasis  ExpiryBasis
	SweepInterval       time.Duration

	// One-time codes.
	PinLifetime time.Duration

	// Hand-off token signing.
	HandoffSigningKey string
	HandoffIssuer     string
	HandoffAudience   string
	HandoffLifetime   time.Duration

	// External registry.
	RegistryBaseURL string
	RegistryAPIKey  string
	RegistryTimeout time.Duration

	// Code delivery.
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	CORSAllowedOrigins []string
}

// RedisConfig controls the shared Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig controls the optional Postgres connection.
type DatabaseConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Missing values fall back to development defaults.
func FromEnv() Config {
	return Config{
		Addr: envOr("IDVERIFY_ADDR", ":8080"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		JourneyExpiryWindow: envDuration("JOURNEY_EXPIRY_WINDOW", 24*time.Hour),
		JourneyExpiryBasis:  expiryBasis(os.Getenv("JOURNEY_EXPIRY_BASIS")),
		SweepInterval:       envDuration("JOURNEY_SWEEP_INTERVAL", 10*time.Minute),
		PinLifetime:         envDuration("PIN_LIFETIME", 15*time.Minute),
		HandoffSigningKey:   envOr("HANDOFF_SIGNING_KEY", "dev-secret-key-change-in-production"),
		HandoffIssuer:       envOr("HANDOFF_ISSUER", "idverify"),
		HandoffAudience:     envOr("HANDOFF_AUDIENCE", "token-issuer"),
		HandoffLifetime:     envDuration("HANDOFF_LIFETIME", 5*time.Minute),
		RegistryBaseURL:     envOr("REGISTRY_BASE_URL", "http://localhost:9090"),
		RegistryAPIKey:      os.Getenv("REGISTRY_API_KEY"),
		RegistryTimeout:     envDuration("REGISTRY_TIMEOUT", 10*time.Second),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            envOr("SMTP_PORT", "587"),
		SMTPFrom:            envOr("SMTP_FROM", "no-reply@idverify.local"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		SNSRegion:           envOr("SNS_REGION", "eu-west-2"),
		CORSAllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func expiryBasis(s string) ExpiryBasis {
	if ExpiryBasis(s) == ExpiryBasisCreated {
		return ExpiryBasisCreated
	}
	return ExpiryBasisLastAccessed
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
