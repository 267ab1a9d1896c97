// Package breaker implements a per-vault circuit breaker that pauses trading
// on a vault after a run of consecutive trade failures, and automatically
// resumes it once a cooldown window has elapsed.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// Notifier is the subset of notify.Notifier the breaker needs. Declared
// locally so this package does not import notify directly. A trip alert
// always goes out regardless of the configured event filter, hence NotifyAll.
type Notifier interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Breaker tracks consecutive trade failures per vault address and trips once
// a vault crosses the configured threshold. State lives only in memory; a
// process restart resets every vault to a clean slate, matching the
// scheduler's in-process breaker map.
type Breaker struct {
	mu       sync.Mutex
	state    map[string]*domain.CircuitBreakerState
	threshold int
	cooldown  time.Duration

	notifier Notifier
	logger   *slog.Logger
}

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithThreshold overrides the default consecutive-failure threshold (5).
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown overrides the default cooldown duration (1 hour).
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithNotifier attaches a Notifier that receives a "circuit_breaker_tripped"
// alert the moment a vault trips.
func WithNotifier(n Notifier) Option {
	return func(b *Breaker) {
		b.notifier = n
	}
}

// New creates a Breaker with a 5-failure threshold and a 1-hour cooldown,
// overridable via options.
func New(logger *slog.Logger, opts ...Option) *Breaker {
	b := &Breaker{
		state:     make(map[string]*domain.CircuitBreakerState),
		threshold: 5,
		cooldown:  time.Hour,
		logger:    logger.With(slog.String("component", "breaker")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Record updates the breaker state for vault after a trade attempt. A
// successful attempt clears the vault's failure count entirely. A failed
// attempt increments it, tripping the breaker the instant the threshold is
// first crossed.
func (b *Breaker) Record(ctx context.Context, vault string, success bool) {
	b.mu.Lock()

	if success {
		delete(b.state, vault)
		b.mu.Unlock()
		return
	}

	st, ok := b.state[vault]
	if !ok {
		st = &domain.CircuitBreakerState{}
		b.state[vault] = st
	}
	st.ConsecutiveFailures++

	justTripped := st.ConsecutiveFailures >= b.threshold && st.TrippedAt == nil
	if justTripped {
		now := time.Now().UTC()
		st.TrippedAt = &now
	}
	failures := st.ConsecutiveFailures
	b.mu.Unlock()

	if !justTripped {
		return
	}

	b.logger.ErrorContext(ctx, "circuit breaker tripped",
		slog.String("vault", vault),
		slog.Int("consecutive_failures", failures),
		slog.Duration("cooldown", b.cooldown),
	)

	if b.notifier == nil {
		return
	}
	title := "Circuit breaker tripped"
	msg := fmt.Sprintf("Vault %s paused after %d consecutive trade failures. Trading resumes in %s.",
		vault, failures, b.cooldown)
	if err := b.notifier.NotifyAll(ctx, title, msg); err != nil {
		b.logger.ErrorContext(ctx, "failed to deliver circuit breaker notification",
			slog.String("vault", vault),
			slog.String("error", err.Error()),
		)
	}
}

// IsBroken reports whether vault is currently paused by the breaker. If the
// vault's cooldown has elapsed, the breaker resets the vault's state and
// returns false so trading resumes.
func (b *Breaker) IsBroken(vault string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[vault]
	if !ok || st.ConsecutiveFailures < b.threshold {
		return false
	}

	if st.TrippedAt != nil && time.Since(*st.TrippedAt) >= b.cooldown {
		delete(b.state, vault)
		return false
	}

	return true
}

// CooldownRemaining returns how much longer vault will stay paused. It
// returns 0 if the vault is not currently broken.
func (b *Breaker) CooldownRemaining(vault string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[vault]
	if !ok || st.TrippedAt == nil {
		return 0
	}

	remaining := b.cooldown - time.Since(*st.TrippedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears all breaker state for vault, regardless of cooldown.
func (b *Breaker) Reset(vault string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, vault)
}
