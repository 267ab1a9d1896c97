package scheduler

import (
	"context"
	"testing"

	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/executor"
	"github.com/atlasxyz/vaultrunner/internal/strategy"
)

func TestTriggerVaultRunsOneTickForAnActiveVault(t *testing.T) {
	vault := testVault("0xabc", "trend")
	vaults := &fakeVaultStore{active: []domain.VaultWithStrategy{vault}}
	strat := &fakeStrategy{asset: "BTC", call: 1}
	registry := &fakeRegistry{strategies: map[string]strategy.Strategy{"trend": strat}}
	exec := &fakeExecutor{tradeOutcome: executor.TradeOutcome{Success: true}}
	trades := &fakeTradeRecordStore{}

	s := New(vaults, &fakeSignalLogStore{}, trades, &fakeSnapshotStore{},
		&fakeChainReader{}, &fakeFeed{candles: oneCandle()}, registry, exec, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	if err := s.TriggerVault(context.Background(), "0xabc"); err != nil {
		t.Fatalf("expected no error triggering an active vault, got %v", err)
	}
	if len(trades.created) != 1 {
		t.Fatalf("expected the triggered tick to record a trade, got %d", len(trades.created))
	}
}

func TestTriggerVaultErrorsWhenVaultUnknown(t *testing.T) {
	vaults := &fakeVaultStore{}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, &fakeSnapshotStore{},
		&fakeChainReader{}, &fakeFeed{}, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	if err := s.TriggerVault(context.Background(), "0xnope"); err == nil {
		t.Fatal("expected an error for an unregistered vault address")
	}
}

func TestTriggerVaultErrorsWhenVaultNotActive(t *testing.T) {
	vault := testVault("0xabc", "trend")
	// Registered (Get succeeds) but absent from the active list (paused).
	vaults := &fakeVaultStore{all: []domain.Vault{vault.Vault}, active: nil}
	s := New(vaults, &fakeSignalLogStore{}, &fakeTradeRecordStore{}, &fakeSnapshotStore{},
		&fakeChainReader{}, &fakeFeed{}, &fakeRegistry{}, &fakeExecutor{}, &fakeBreaker{broken: map[string]bool{}},
		Config{}, testLogger())

	if err := s.TriggerVault(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected an error for a vault not present in the active list")
	}
}
