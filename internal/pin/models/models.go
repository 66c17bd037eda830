package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CodeLength is the fixed length of generated one-time codes.
const CodeLength = 6

// OneTimeCode is one generated code row, scoped to a channel value (an email
// address or a phone number). Old rows are retained for audit; they are never
// reused or overwritten.
type OneTimeCode struct {
	ID         uuid.UUID  `json:"id"`
	Channel    string     `json:"channel"`
	Code       string     `json:"code"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Active     bool       `json:"active"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GenerateFailedReason explains why code generation was refused.
type GenerateFailedReason string

const (
	GenerateFailedNone              GenerateFailedReason = ""
	GenerateFailedRateLimitExceeded GenerateFailedReason = "rate_limit_exceeded"
)

// VerifyFailedReasons is a bit set of verification failure conditions.
// Several conditions can co-occur: a superseded code may also be expired, and
// an expired code may additionally be flagged as recently expired. The rate
// limit flag is exclusive; it is checked first and short-circuits the rest.
type VerifyFailedReasons uint8

const (
	VerifyFailedNone VerifyFailedReasons = 0

	// VerifyFailedUnknown: no row matches the channel and code.
	VerifyFailedUnknown VerifyFailedReasons = 1 << iota
	// VerifyFailedExpired: the matched row is past its expiry.
	VerifyFailedExpired
	// VerifyFailedExpiredRecently: sub-flag of Expired, set when the expiry
	// was less than two hours ago. Callers should silently issue a fresh code
	// and tell the user a new code was sent, not report a bare failure.
	VerifyFailedExpiredRecently
	// VerifyFailedNotActive: the row exists but was consumed or superseded.
	VerifyFailedNotActive
	// VerifyFailedRateLimitExceeded: too many attempts; exclusive.
	VerifyFailedRateLimitExceeded
)

// Has reports whether the flag is set.
func (r VerifyFailedReasons) Has(flag VerifyFailedReasons) bool {
	return r&flag != 0
}

// OK reports verification success (no flags set).
func (r VerifyFailedReasons) OK() bool {
	return r == VerifyFailedNone
}

// String renders the set flags for logs.
func (r VerifyFailedReasons) String() string {
	if r == VerifyFailedNone {
		return "none"
	}
	var parts []string
	for flag, name := range map[VerifyFailedReasons]string{
		VerifyFailedUnknown:           "unknown",
		VerifyFailedExpired:           "expired",
		VerifyFailedExpiredRecently:   "expired_recently",
		VerifyFailedNotActive:         "not_active",
		VerifyFailedRateLimitExceeded: "rate_limit_exceeded",
	} {
		if r.Has(flag) {
			parts = append(parts, name)
		}
	}
	// Map iteration order is unstable; sort for deterministic logs.
	for i := range parts {
		for j := i + 1; j < len(parts); j++ {
			if parts[j] < parts[i] {
				parts[i], parts[j] = parts[j], parts[i]
			}
		}
	}
	return strings.Join(parts, ",")
}
