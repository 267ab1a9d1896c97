package breaker

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	calls []string
}

func (r *recordingNotifier) NotifyAll(ctx context.Context, title, message string) error {
	r.calls = append(r.calls, title)
	return nil
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := New(testLogger(), WithThreshold(3), WithCooldown(time.Hour))
	ctx := context.Background()
	vault := "0xabc"

	if b.IsBroken(vault) {
		t.Fatal("fresh vault should not be broken")
	}

	b.Record(ctx, vault, false)
	b.Record(ctx, vault, false)
	if b.IsBroken(vault) {
		t.Fatal("vault should not trip before threshold")
	}

	b.Record(ctx, vault, false)
	if !b.IsBroken(vault) {
		t.Fatal("vault should trip at threshold")
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := New(testLogger(), WithThreshold(2))
	ctx := context.Background()
	vault := "0xabc"

	b.Record(ctx, vault, false)
	b.Record(ctx, vault, true)
	b.Record(ctx, vault, false)
	if b.IsBroken(vault) {
		t.Fatal("a success should clear the failure count")
	}
}

func TestBreakerCooldownExpiry(t *testing.T) {
	b := New(testLogger(), WithThreshold(1), WithCooldown(time.Millisecond))
	ctx := context.Background()
	vault := "0xabc"

	b.Record(ctx, vault, false)
	if !b.IsBroken(vault) {
		t.Fatal("expected vault to trip immediately")
	}

	time.Sleep(5 * time.Millisecond)
	if b.IsBroken(vault) {
		t.Fatal("expected breaker to clear after cooldown elapses")
	}
	if b.CooldownRemaining(vault) != 0 {
		t.Fatal("expected zero cooldown remaining after reset")
	}
}

func TestBreakerNotifiesOnlyOnTrip(t *testing.T) {
	notifier := &recordingNotifier{}
	b := New(testLogger(), WithThreshold(2), WithNotifier(notifier))
	ctx := context.Background()
	vault := "0xabc"

	b.Record(ctx, vault, false)
	if len(notifier.calls) != 0 {
		t.Fatal("should not notify before threshold")
	}

	b.Record(ctx, vault, false)
	if len(notifier.calls) != 1 {
		t.Fatalf("expected exactly one notification on trip, got %d", len(notifier.calls))
	}

	b.Record(ctx, vault, false)
	if len(notifier.calls) != 1 {
		t.Fatal("should not re-notify on repeated failures while already tripped")
	}
}

func TestReset(t *testing.T) {
	b := New(testLogger(), WithThreshold(1))
	ctx := context.Background()
	vault := "0xabc"

	b.Record(ctx, vault, false)
	if !b.IsBroken(vault) {
		t.Fatal("expected vault to be broken")
	}
	b.Reset(vault)
	if b.IsBroken(vault) {
		t.Fatal("expected Reset to clear breaker state")
	}
}
