package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/executor"
	"github.com/atlasxyz/vaultrunner/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVaultStore struct {
	active        []domain.VaultWithStrategy
	all           []domain.Vault // registered but not necessarily active; falls back to active if nil
	lastCheckedAt map[string]time.Time
}

func (f *fakeVaultStore) Get(ctx context.Context, address string) (domain.Vault, error) {
	pool := f.all
	if pool == nil {
		for _, v := range f.active {
			pool = append(pool, v.Vault)
		}
	}
	for _, v := range pool {
		if v.Address == address {
			return v, nil
		}
	}
	return domain.Vault{}, domain.ErrNotFound
}
func (f *fakeVaultStore) ListActive(ctx context.Context) ([]domain.VaultWithStrategy, error) {
	return f.active, nil
}
func (f *fakeVaultStore) Create(ctx context.Context, v domain.Vault) error { return nil }
func (f *fakeVaultStore) UpdateLastChecked(ctx context.Context, address string, at time.Time) error {
	if f.lastCheckedAt == nil {
		f.lastCheckedAt = make(map[string]time.Time)
	}
	f.lastCheckedAt[address] = at
	return nil
}
func (f *fakeVaultStore) UpdateStatus(ctx context.Context, address string, status domain.VaultStatus) error {
	return nil
}
func (f *fakeVaultStore) Link(ctx context.Context, address string, strategyID int64) error { return nil }

type fakeSignalLogStore struct {
	created []domain.SignalLog
}

func (f *fakeSignalLogStore) Create(ctx context.Context, log domain.SignalLog) error {
	f.created = append(f.created, log)
	return nil
}
func (f *fakeSignalLogStore) ListByVault(ctx context.Context, vaultAddress string, opts domain.ListOpts) ([]domain.SignalLog, error) {
	return nil, nil
}

type fakeTradeRecordStore struct {
	created []domain.TradeRecord
	nextNum int64
}

func (f *fakeTradeRecordStore) Create(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	f.created = append(f.created, rec)
	return rec, nil
}
func (f *fakeTradeRecordStore) NextTradeNum(ctx context.Context, vaultAddress string) (int64, error) {
	f.nextNum++
	return f.nextNum, nil
}
func (f *fakeTradeRecordStore) ListByVault(ctx context.Context, vaultAddress string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	return nil, nil
}

type fakeSnapshotStore struct {
	created []domain.PerformanceSnapshot
}

func (f *fakeSnapshotStore) Create(ctx context.Context, snap domain.PerformanceSnapshot) error {
	f.created = append(f.created, snap)
	return nil
}
func (f *fakeSnapshotStore) Latest(ctx context.Context, vaultAddress string) (domain.PerformanceSnapshot, error) {
	return domain.PerformanceSnapshot{}, domain.ErrNotFound
}
func (f *fakeSnapshotStore) ListOlderThan(ctx context.Context, before time.Time) ([]domain.PerformanceSnapshot, error) {
	return nil, nil
}

type fakeChainReader struct {
	positions []domain.Position
	tvl       float64
}

func (f *fakeChainReader) Positions(ctx context.Context, vault common.Address) ([]domain.Position, error) {
	return f.positions, nil
}
func (f *fakeChainReader) TVL(ctx context.Context, vault common.Address) (float64, error) {
	return f.tvl, nil
}
func (f *fakeChainReader) SharePrice(ctx context.Context, vault common.Address) (float64, error) {
	return 1.0, nil
}
func (f *fakeChainReader) DepositorCount(ctx context.Context, vault common.Address) (int, error) {
	return 3, nil
}

type fakeFeed struct {
	candles []domain.Candle
}

func (f *fakeFeed) Candles(ctx context.Context, asset, timeframe string, limit int) ([]domain.Candle, error) {
	return f.candles, nil
}

// fakeStrategy is a minimal strategy.Strategy test double that always
// returns the same per-bar call, regardless of input.
type fakeStrategy struct {
	asset string
	call  int8
	err   error
}

func (s *fakeStrategy) Meta() strategy.Meta {
	return strategy.Meta{Asset: s.asset, Timeframe: "1h"}
}
func (s *fakeStrategy) GenerateSignals(candles []domain.Candle) ([]int8, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]int8, len(candles))
	for i := range out {
		out[i] = s.call
	}
	return out, nil
}

type fakeRegistry struct {
	strategies map[string]strategy.Strategy
}

func (f *fakeRegistry) Get(slug string) (strategy.Strategy, error) {
	s, ok := f.strategies[slug]
	if !ok {
		return nil, errors.New("not registered")
	}
	return s, nil
}

type fakeExecutor struct {
	tradeOutcome executor.TradeOutcome
	tradeErr     error
	closeOutcome executor.TradeOutcome
	closeErr     error
}

func (f *fakeExecutor) ExecuteTrade(ctx context.Context, signal domain.Signal, vaultAddress string, sizeOverride float64) (executor.TradeOutcome, error) {
	return f.tradeOutcome, f.tradeErr
}
func (f *fakeExecutor) ExecuteClose(ctx context.Context, asset string, currentPrice, positionSizeUSD float64, vaultAddress string) (executor.TradeOutcome, error) {
	return f.closeOutcome, f.closeErr
}

type fakeBreaker struct {
	broken  map[string]bool
	records []bool
}

func (f *fakeBreaker) Record(ctx context.Context, vault string, success bool) {
	f.records = append(f.records, success)
}
func (f *fakeBreaker) IsBroken(vault string) bool {
	return f.broken[vault]
}

func testVault(address, slug string) domain.VaultWithStrategy {
	id := int64(1)
	return domain.VaultWithStrategy{
		Vault: domain.Vault{
			Address:       address,
			StrategyID:    &id,
			Status:        domain.VaultStatusActive,
			CheckInterval: domain.Interval1h,
		},
		Strategy: &domain.Strategy{ID: id, Slug: slug, Asset: "BTC", Timeframe: "1h"},
	}
}

func oneCandle() []domain.Candle {
	return []domain.Candle{{Timestamp: time.Now().UTC(), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}}
}

func newTestScheduler(t *testing.T, vault domain.VaultWithStrategy, strat *fakeStrategy, chain *fakeChainReader, exec *fakeExecutor, brk *fakeBreaker) (*Scheduler, *fakeTradeRecordStore, *fakeSignalLogStore) {
	t.Helper()
	vaults := &fakeVaultStore{active: []domain.VaultWithStrategy{vault}}
	signals := &fakeSignalLogStore{}
	trades := &fakeTradeRecordStore{}
	snapshots := &fakeSnapshotStore{}
	feed := &fakeFeed{candles: oneCandle()}
	registry := &fakeRegistry{strategies: map[string]strategy.Strategy{vault.Strategy.Slug: strat}}

	s := New(vaults, signals, trades, snapshots, chain, feed, registry, exec, brk, Config{}, testLogger())
	return s, trades, signals
}

func TestProcessVaultOpensWhenFlatAndSignalFires(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: 1}
	chain := &fakeChainReader{positions: nil, tvl: 1000}
	exec := &fakeExecutor{tradeOutcome: executor.TradeOutcome{Success: true}}
	brk := &fakeBreaker{broken: map[string]bool{}}

	s, trades, signals := newTestScheduler(t, vault, strat, chain, exec, brk)
	s.processVault(context.Background(), vault)

	if len(signals.created) != 1 {
		t.Fatalf("expected exactly one signal log, got %d", len(signals.created))
	}
	if len(trades.created) != 1 {
		t.Fatalf("expected exactly one trade record for an open, got %d", len(trades.created))
	}
	if trades.created[0].Side != domain.TradeSideLong {
		t.Fatalf("expected a LONG trade record, got %s", trades.created[0].Side)
	}
}

func TestProcessVaultNoopWhenFlatAndSignalNeutral(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: 0}
	chain := &fakeChainReader{positions: nil}
	exec := &fakeExecutor{}
	brk := &fakeBreaker{broken: map[string]bool{}}

	s, trades, signals := newTestScheduler(t, vault, strat, chain, exec, brk)
	s.processVault(context.Background(), vault)

	if len(signals.created) != 1 {
		t.Fatalf("expected the neutral signal to still be logged, got %d", len(signals.created))
	}
	if len(trades.created) != 0 {
		t.Fatalf("expected no trade record for a noop, got %d", len(trades.created))
	}
}

func TestProcessVaultClosesWhenSignalGoesNeutral(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: 0}
	chain := &fakeChainReader{positions: []domain.Position{{Asset: "BTC", Size: 5, SizeUSD: 500}}}
	exec := &fakeExecutor{closeOutcome: executor.TradeOutcome{Success: true}}
	brk := &fakeBreaker{broken: map[string]bool{}}

	s, trades, _ := newTestScheduler(t, vault, strat, chain, exec, brk)
	s.processVault(context.Background(), vault)

	if len(trades.created) != 1 {
		t.Fatalf("expected exactly one close trade record, got %d", len(trades.created))
	}
	if trades.created[0].Side != domain.TradeSideNeutral {
		t.Fatalf("expected a neutral (close) trade record, got %s", trades.created[0].Side)
	}
}

func TestProcessVaultCloseThenOpenAbortsOpenLegOnCloseFailure(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: -1} // currently long, signal wants short
	chain := &fakeChainReader{positions: []domain.Position{{Asset: "BTC", Size: 5, SizeUSD: 500}}}
	exec := &fakeExecutor{
		closeOutcome: executor.TradeOutcome{Success: false, Error: errors.New("tx reverted")},
	}
	brk := &fakeBreaker{broken: map[string]bool{}}

	s, trades, _ := newTestScheduler(t, vault, strat, chain, exec, brk)
	s.processVault(context.Background(), vault)

	if len(trades.created) != 1 {
		t.Fatalf("expected only the failed close to be recorded, got %d", len(trades.created))
	}
	if trades.created[0].Result != domain.TradeResultFailed {
		t.Fatalf("expected the close record to be marked failed, got %s", trades.created[0].Result)
	}
}

func TestProcessVaultSkipsWhenCircuitBroken(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: 1}
	chain := &fakeChainReader{}
	exec := &fakeExecutor{}
	brk := &fakeBreaker{broken: map[string]bool{"0xabc": true}}

	s, trades, signals := newTestScheduler(t, vault, strat, chain, exec, brk)
	s.processVault(context.Background(), vault)

	if len(signals.created) != 0 || len(trades.created) != 0 {
		t.Fatal("expected a circuit-broken vault to be skipped entirely")
	}
}

func TestProcessVaultUpdatesLastCheckedAtRegardlessOfOutcome(t *testing.T) {
	vault := testVault("0xabc", "trend")
	strat := &fakeStrategy{asset: "BTC", call: 0, err: errors.New("boom")}
	chain := &fakeChainReader{}
	exec := &fakeExecutor{}
	brk := &fakeBreaker{broken: map[string]bool{}}

	s, _, _ := newTestScheduler(t, vault, strat, chain, exec, brk)
	vs := s.vaults.(*fakeVaultStore)
	s.processVault(context.Background(), vault)

	if _, ok := vs.lastCheckedAt[vault.Address]; !ok {
		t.Fatal("expected last_checked_at to be updated even when signal generation fails")
	}
}

func TestDueForCheckNeverCheckedIsDue(t *testing.T) {
	v := domain.VaultWithStrategy{Vault: domain.Vault{CheckInterval: domain.Interval1h}}
	if !dueForCheck(v, time.Now().UTC()) {
		t.Fatal("expected a never-checked vault to be due")
	}
}

func TestDueForCheckRespectsInterval(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-30 * time.Second)
	v := domain.VaultWithStrategy{Vault: domain.Vault{CheckInterval: domain.Interval1m, LastCheckedAt: &recent}}
	if dueForCheck(v, now) {
		t.Fatal("expected vault checked 30s ago on a 1m interval to not be due")
	}

	stale := now.Add(-2 * time.Minute)
	v.LastCheckedAt = &stale
	if !dueForCheck(v, now) {
		t.Fatal("expected vault checked 2m ago on a 1m interval to be due")
	}
}

func TestUntilNextHourPositiveAndBounded(t *testing.T) {
	d := untilNextHour(time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC))
	if d != 45*time.Minute {
		t.Fatalf("expected 45m until next hour, got %v", d)
	}
}

func TestFilterByAsset(t *testing.T) {
	positions := []domain.Position{{Asset: "BTC", Size: 1}, {Asset: "ETH", Size: 2}}
	out := filterByAsset(positions, "BTC")
	if len(out) != 1 || out[0].Asset != "BTC" {
		t.Fatalf("unexpected filter result: %+v", out)
	}
}

func TestSizePctForZeroDirection(t *testing.T) {
	if sizePctFor(0, 1.0) != 0 {
		t.Fatal("expected zero size_pct for a neutral direction")
	}
	if sizePctFor(1, 0.5) != 0.5 {
		t.Fatal("expected default size_pct for a long direction")
	}
}

func TestTradeSideFor(t *testing.T) {
	cases := map[int8]domain.TradeSide{1: domain.TradeSideLong, -1: domain.TradeSideShort, 0: domain.TradeSideNeutral}
	for dir, want := range cases {
		if got := tradeSideFor(dir); got != want {
			t.Fatalf("direction %d: want %s, got %s", dir, want, got)
		}
	}
}
