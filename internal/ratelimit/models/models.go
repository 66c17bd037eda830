package models

import (
	"strings"
	"time"
)

// OperationKind categorizes rate-limited operations. Each kind keeps its own
// counter window so PIN generation and PIN verification never share a budget.
type OperationKind string

const (
	OpPinGeneration   OperationKind = "pin_generation"
	OpPinVerification OperationKind = "pin_verification"
)

// IsValid checks if the operation kind is one of the supported enum values.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpPinGeneration, OpPinVerification:
		return true
	}
	return false
}

// String returns the string representation.
func (k OperationKind) String() string {
	return string(k)
}

// Limit is the counter threshold and TTL window for one operation kind.
type Limit struct {
	Max    int
	Window time.Duration
}

// CounterResult is the outcome of recording or reading a counter.
type CounterResult struct {
	Count    int  `json:"count"`
	Limit    int  `json:"limit"`
	Exceeded bool `json:"exceeded"`
}

// SanitizeKeySegment escapes delimiter characters in counter key segments to
// prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent counters.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// CounterKey addresses one (operation kind, subject) counter.
type CounterKey struct {
	Kind    OperationKind
	Subject string
}

// NewCounterKey builds a counter key with sanitized segments.
func NewCounterKey(kind OperationKind, subject string) CounterKey {
	return CounterKey{Kind: kind, Subject: SanitizeKeySegment(subject)}
}

// String renders the store key, e.g. "rl:pin_generation:203.0.113.7".
func (k CounterKey) String() string {
	return "rl:" + string(k.Kind) + ":" + k.Subject
}
