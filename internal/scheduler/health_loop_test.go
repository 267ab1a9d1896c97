package scheduler

import (
	"context"
	"testing"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// sizableFeed additionally implements CandleBufferSizer.
type sizableFeed struct {
	fakeFeed
	sizes map[string]int
}

func (f *sizableFeed) BufferSizes() map[string]int { return f.sizes }

func TestRunHealthTickReportsBufferSizesWhenFeedSupportsIt(t *testing.T) {
	vaults := &fakeVaultStore{active: []domain.VaultWithStrategy{testVault("0xabc", "trend")}}
	feed := &sizableFeed{sizes: map[string]int{"BTC": 120}}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, &fakeSnapshotStore{},
		&fakeChainReader{}, feed, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	// runHealthTick only logs; exercising it for a panic-free run with a
	// feed that does implement CandleBufferSizer is the behavior under test.
	s.runHealthTick(context.Background())
}

func TestRunHealthTickToleratesFeedWithoutBufferSizer(t *testing.T) {
	vaults := &fakeVaultStore{active: []domain.VaultWithStrategy{testVault("0xabc", "trend")}}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, &fakeSnapshotStore{},
		&fakeChainReader{}, &fakeFeed{}, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	// fakeFeed does not implement CandleBufferSizer; the type assertion in
	// runHealthTick must fall back to a nil map rather than panicking.
	s.runHealthTick(context.Background())
}
