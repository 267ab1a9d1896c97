package domain

import "time"

// CircuitBreakerState is the per-vault in-memory breaker state.
// TrippedAt is non-nil iff ConsecutiveFailures >= the configured threshold.
// This is never persisted; a process restart resets every vault to a clean
// slate, by design.
type CircuitBreakerState struct {
	ConsecutiveFailures int
	TrippedAt           *time.Time
}
