package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func TestUntilNextHourAtExactBoundary(t *testing.T) {
	d := untilNextHour(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	if d != time.Hour {
		t.Fatalf("expected a full hour wait exactly on the boundary, got %v", d)
	}
}

func TestUntilNextHourJustBeforeBoundary(t *testing.T) {
	d := untilNextHour(time.Date(2026, 1, 1, 10, 59, 59, 0, time.UTC))
	if d <= 0 || d > time.Second {
		t.Fatalf("expected a sub-second wait just before the boundary, got %v", d)
	}
}

// partialFailChainReader fails exactly one of the four snapshot reads, to
// prove a single failing read aborts the whole vault's snapshot via
// errgroup's first-error cancellation rather than persisting a partial one.
type partialFailChainReader struct {
	failTVL bool
}

func (f *partialFailChainReader) Positions(ctx context.Context, vault common.Address) ([]domain.Position, error) {
	return []domain.Position{{Asset: "BTC", Size: 1, UnrealizedPnL: 50}}, nil
}
func (f *partialFailChainReader) TVL(ctx context.Context, vault common.Address) (float64, error) {
	if f.failTVL {
		return 0, errors.New("rpc timeout")
	}
	return 10_000, nil
}
func (f *partialFailChainReader) SharePrice(ctx context.Context, vault common.Address) (float64, error) {
	return 1.1, nil
}
func (f *partialFailChainReader) DepositorCount(ctx context.Context, vault common.Address) (int, error) {
	return 2, nil
}

func TestSnapshotVaultPersistsOnAllReadsSucceeding(t *testing.T) {
	vaults := &fakeVaultStore{}
	snapshots := &fakeSnapshotStore{}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, snapshots,
		&partialFailChainReader{}, &fakeFeed{}, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	s.snapshotVault(context.Background(), testVault("0xabc", "trend"))

	if len(snapshots.created) != 1 {
		t.Fatalf("expected one persisted snapshot, got %d", len(snapshots.created))
	}
	if snapshots.created[0].UnrealizedPnL != 50 {
		t.Fatalf("expected unrealized PnL summed from positions, got %v", snapshots.created[0].UnrealizedPnL)
	}
}

func TestSnapshotVaultSkipsPersistOnPartialReadFailure(t *testing.T) {
	vaults := &fakeVaultStore{}
	snapshots := &fakeSnapshotStore{}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, snapshots,
		&partialFailChainReader{failTVL: true}, &fakeFeed{}, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	s.snapshotVault(context.Background(), testVault("0xabc", "trend"))

	if len(snapshots.created) != 0 {
		t.Fatalf("expected no persisted snapshot when one chain read fails, got %d", len(snapshots.created))
	}
}
